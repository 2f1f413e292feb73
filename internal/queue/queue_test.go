package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/PratikDhanave/offhours-digest/internal/id"
	"github.com/PratikDhanave/offhours-digest/internal/lock"
	"github.com/PratikDhanave/offhours-digest/internal/models"
	"github.com/PratikDhanave/offhours-digest/internal/queue"
)

func pageEvent(eventType, entityID string) models.InboundEvent {
	ev := models.InboundEvent{Type: eventType}
	if entityID != "" {
		ev.Entity = &models.Entity{ID: entityID}
	}
	return ev
}

var _ = Describe("EventQueue", func() {
	var (
		ctx       context.Context
		buf       *queue.MemoryBuffer
		persister *mockPersister
		q         *queue.EventQueue
		loc       *time.Location
	)

	BeforeEach(func() {
		ctx = context.Background()
		buf = queue.NewMemoryBuffer(100, time.Minute)
		persister = &mockPersister{}

		var err error
		loc, err = time.LoadLocation("Asia/Tokyo")
		Expect(err).NotTo(HaveOccurred())

		gen, err := id.NewGenerator(1, "Q_")
		Expect(err).NotTo(HaveOccurred())

		q = queue.New(buf, gen, persister, staticResolver("Alice"), lock.NewLocal(), queue.Config{Location: loc})
	})

	Describe("Enqueue", func() {
		It("stores the event under a fresh Q_ key and submits a drain", func() {
			sub := &countingSubmitter{}
			q.SetScheduler(sub)

			k1, err := q.Enqueue(ctx, pageEvent("page.created", "p1"))
			Expect(err).NotTo(HaveOccurred())
			k2, err := q.Enqueue(ctx, pageEvent("page.created", "p2"))
			Expect(err).NotTo(HaveOccurred())

			Expect(k1).To(HavePrefix("Q_"))
			Expect(k1).NotTo(Equal(k2))
			Expect(buf.Len()).To(Equal(2))
			Expect(sub.n.Load()).To(BeEquivalentTo(2))
		})

		It("reports a full buffer", func() {
			gen, _ := id.NewGenerator(2, "Q_")
			small := queue.New(queue.NewMemoryBuffer(1, time.Minute), gen, persister, staticResolver("x"), nil, queue.Config{})

			_, err := small.Enqueue(ctx, pageEvent("page.created", "a"))
			Expect(err).NotTo(HaveOccurred())
			_, err = small.Enqueue(ctx, pageEvent("page.created", "b"))
			Expect(err).To(MatchError(queue.ErrBufferFull))
		})
	})

	Describe("Drain", func() {
		It("persists exactly one record for a typed event", func() {
			_, err := q.Enqueue(ctx, pageEvent("page.content_updated", "test-page-id"))
			Expect(err).NotTo(HaveOccurred())

			stats := q.Drain(ctx)

			Expect(stats).To(Equal(queue.DrainStats{Claimed: 1, Persisted: 1}))
			recs := persister.Records()
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Type).To(Equal("page.content_updated"))
			Expect(recs[0].EntityID).To(Equal("test-page-id"))
			Expect(recs[0].UserDisplay).To(Equal("Alice"))
			Expect(recs[0].URL).To(Equal("https://www.notion.so/testpageid"))
			Expect(recs[0].Timestamp.Location()).To(Equal(loc))
			Expect(buf.Len()).To(BeZero())
		})

		It("drops events without a type", func() {
			_, err := q.Enqueue(ctx, models.InboundEvent{})
			Expect(err).NotTo(HaveOccurred())

			stats := q.Drain(ctx)

			Expect(stats.Skipped).To(Equal(1))
			Expect(persister.Records()).To(BeEmpty())
			Expect(buf.Len()).To(BeZero())
		})

		It("writes an empty URL when the entity is absent", func() {
			_, _ = q.Enqueue(ctx, pageEvent("comment.created", ""))
			q.Drain(ctx)

			recs := persister.Records()
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].URL).To(BeEmpty())
		})

		It("keeps going past an item that fails to persist", func() {
			persister.appendFn = func(_ context.Context, rec models.EventRecord) error {
				if rec.EntityID == "bad" {
					return errors.New("store unavailable")
				}
				return nil
			}
			_, _ = q.Enqueue(ctx, pageEvent("page.created", "a"))
			_, _ = q.Enqueue(ctx, pageEvent("page.created", "bad"))
			_, _ = q.Enqueue(ctx, pageEvent("page.created", "c"))

			stats := q.Drain(ctx)

			Expect(stats.Persisted).To(Equal(2))
			Expect(stats.Failed).To(Equal(1))
			Expect(buf.Len()).To(BeZero())

			var ids []string
			for _, r := range persister.Records() {
				ids = append(ids, r.EntityID)
			}
			Expect(ids).To(ConsistOf("a", "c"))
		})

		It("abandons the write when the lock cannot be taken", func() {
			var gotTimeout time.Duration
			locker := &mockLocker{tryLockFn: func(_ context.Context, timeout time.Duration) (func(), error) {
				gotTimeout = timeout
				return nil, lock.ErrNotAcquired
			}}
			gen, _ := id.NewGenerator(3, "Q_")
			lq := queue.New(buf, gen, persister, staticResolver("x"), locker, queue.Config{})

			_, _ = lq.Enqueue(ctx, pageEvent("page.created", "a"))
			stats := lq.Drain(ctx)

			Expect(gotTimeout).To(Equal(queue.DefaultLockTimeout))
			Expect(stats.Failed).To(Equal(1))
			Expect(persister.Records()).To(BeEmpty())
			Expect(buf.Len()).To(BeZero())
		})

		It("copies each saved record to the debug log", func() {
			dbg := &recordingDebugLog{}
			gen, _ := id.NewGenerator(4, "Q_")
			dq := queue.New(buf, gen, persister, staticResolver("Alice"), nil, queue.Config{Location: loc, Debug: dbg})

			_, _ = dq.Enqueue(ctx, pageEvent("page.created", "p1"))
			_, _ = dq.Enqueue(ctx, models.InboundEvent{})
			dq.Drain(ctx)

			Expect(dbg.labels).To(Equal([]string{"save_event"}))
			rec, ok := dbg.values[0].(models.EventRecord)
			Expect(ok).To(BeTrue())
			Expect(rec.EntityID).To(Equal("p1"))
			Expect(rec.UserDisplay).To(Equal("Alice"))
		})

		It("puts back the in-flight item and asks for another drain when time runs out", func() {
			dctx, cancel := context.WithCancel(ctx)
			defer cancel()
			persister.appendFn = func(c context.Context, rec models.EventRecord) error {
				if rec.EntityID == "slow" {
					cancel()
					return c.Err()
				}
				return nil
			}

			_, _ = q.Enqueue(ctx, pageEvent("page.created", "a"))
			_, _ = q.Enqueue(ctx, pageEvent("page.created", "slow"))
			_, _ = q.Enqueue(ctx, pageEvent("page.created", "c"))
			sub := &countingSubmitter{}
			q.SetScheduler(sub)

			stats := q.Drain(dctx)

			Expect(stats).To(Equal(queue.DrainStats{Claimed: 2, Persisted: 1, Requeued: 1, Remaining: 1}))
			Expect(buf.Len()).To(Equal(2))
			Expect(sub.n.Load()).To(BeEquivalentTo(1))

			persister.appendFn = nil
			Expect(q.Drain(ctx).Persisted).To(Equal(2))

			var ids []string
			for _, r := range persister.Records() {
				ids = append(ids, r.EntityID)
			}
			Expect(ids).To(ConsistOf("a", "slow", "c"))
		})

		It("never duplicates or loses items across concurrent drains", func() {
			const n = 200
			for i := 0; i < n; i++ {
				_, err := q.Enqueue(ctx, pageEvent("page.created", fmt.Sprintf("p-%03d", i)))
				Expect(err).NotTo(HaveOccurred())
			}

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					q.Drain(ctx)
				}()
			}
			wg.Wait()

			seen := map[string]int{}
			for _, r := range persister.Records() {
				seen[r.EntityID]++
			}
			Expect(seen).To(HaveLen(n))
			for k, c := range seen {
				Expect(c).To(Equal(1), "entity %s persisted %d times", k, c)
			}
		})
	})
})

var _ = Describe("DrainScheduler", func() {
	It("folds a burst of submits into one drain", func() {
		var mu sync.Mutex
		runs := 0
		s := queue.NewDrainScheduler(20*time.Millisecond, func(context.Context) {
			mu.Lock()
			runs++
			mu.Unlock()
		})
		go s.Run(context.Background())
		defer s.Stop()

		for i := 0; i < 10; i++ {
			s.Submit()
		}

		count := func() int {
			mu.Lock()
			defer mu.Unlock()
			return runs
		}
		Eventually(count).Should(Equal(1))
		Consistently(count, 100*time.Millisecond).Should(Equal(1))
	})

	It("schedules one follow-up for submits during a running drain", func() {
		started := make(chan struct{})
		release := make(chan struct{})
		var mu sync.Mutex
		runs := 0

		s := queue.NewDrainScheduler(10*time.Millisecond, func(context.Context) {
			mu.Lock()
			runs++
			first := runs == 1
			mu.Unlock()
			if first {
				close(started)
				<-release
			}
		})
		go s.Run(context.Background())
		defer s.Stop()

		s.Submit()
		Eventually(started).Should(BeClosed())
		s.Submit()
		s.Submit()
		s.Submit()
		close(release)

		count := func() int {
			mu.Lock()
			defer mu.Unlock()
			return runs
		}
		Eventually(count).Should(Equal(2))
		Consistently(count, 100*time.Millisecond).Should(Equal(2))
	})

	It("runs a pending drain on Stop", func() {
		ran := make(chan struct{}, 1)
		s := queue.NewDrainScheduler(time.Hour, func(context.Context) { ran <- struct{}{} })
		go s.Run(context.Background())

		s.Submit()
		// give Run a chance to pick up the submit before stopping
		time.Sleep(20 * time.Millisecond)
		s.Stop()

		Expect(ran).To(Receive())
	})
})
