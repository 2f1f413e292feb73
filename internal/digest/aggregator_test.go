package digest_test

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/PratikDhanave/offhours-digest/internal/digest"
	"github.com/PratikDhanave/offhours-digest/internal/models"
)

var _ = Describe("Aggregator", func() {
	var (
		ctx      context.Context
		loc      *time.Location
		now      time.Time
		records  []models.EventRecord
		gotFrom  time.Time
		gotTo    time.Time
		events   *mockEvents
		exporter *mockExporter
		notifier *mockNotifier
		pruner   *mockPruner
		agg      *digest.Aggregator
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		loc, err = time.LoadLocation("Asia/Tokyo")
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2025, 1, 9, 9, 0, 0, 0, loc)

		records = nil
		events = &mockEvents{queryFn: func(_ context.Context, from, to time.Time) ([]models.EventRecord, error) {
			gotFrom, gotTo = from, to
			return records, nil
		}}
		exporter = &mockExporter{url: "https://digest.example.com/exports/abc"}
		notifier = &mockNotifier{}
		pruner = &mockPruner{}
		agg = digest.NewAggregator(events, exporter, notifier, pruner, loc, digest.WithClock(func() time.Time { return now }))
	})

	It("queries yesterday in the configured zone", func() {
		_, err := agg.RunDaily(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(gotFrom).To(BeTemporally("==", time.Date(2025, 1, 8, 0, 0, 0, 0, loc)))
		Expect(gotTo).To(BeTemporally("==", time.Date(2025, 1, 9, 0, 0, 0, 0, loc)))
	})

	Context("when the window is empty", func() {
		It("has no side effects", func() {
			sum, err := agg.RunDaily(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(sum.Events).To(BeZero())
			Expect(exporter.calls).To(BeZero())
			Expect(notifier.posts).To(BeEmpty())
			Expect(pruner.calls).To(BeZero())
		})
	})

	Context("with events from several users", func() {
		BeforeEach(func() {
			records = []models.EventRecord{
				{Type: "page.created", UserDisplay: "Alice"},
				{Type: "page.content_updated", UserDisplay: "Bob"},
				{Type: "page.content_updated", UserDisplay: "Alice"},
				{Type: "comment.created", UserDisplay: "(unknown)"},
			}
		})

		It("exports, posts one bullet per distinct user and prunes", func() {
			sum, err := agg.RunDaily(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(sum.Users).To(Equal([]string{"Alice", "Bob", "(unknown)"}))
			Expect(exporter.calls).To(Equal(1))
			Expect(exporter.name).To(Equal("OffHours_20250108_0000"))
			Expect(exporter.records).To(HaveLen(4))

			Expect(notifier.posts).To(HaveLen(1))
			blocks := notifier.posts[0]
			Expect(blocks).To(HaveLen(3))
			Expect(blocks[0].Text.Text).To(Equal(digest.HeaderText))
			Expect(blocks[1].Text.Type).To(Equal("mrkdwn"))
			Expect(strings.Split(blocks[1].Text.Text, "\n")).To(Equal([]string{"• Alice", "• Bob", "• (unknown)"}))
			Expect(blocks[2].Elements[0].URL).To(Equal("https://digest.example.com/exports/abc"))

			Expect(pruner.calls).To(Equal(1))
		})

		It("stops before posting when the export fails", func() {
			exporter.err = errors.New("disk full")

			_, err := agg.RunDaily(ctx)

			Expect(err).To(HaveOccurred())
			Expect(notifier.posts).To(BeEmpty())
			Expect(pruner.calls).To(BeZero())
		})

		It("does not prune when the post fails", func() {
			notifier.err = errors.New("connection reset")

			_, err := agg.RunDaily(ctx)

			Expect(err).To(HaveOccurred())
			Expect(pruner.calls).To(BeZero())
		})
	})

	It("propagates query failures", func() {
		events.queryFn = func(context.Context, time.Time, time.Time) ([]models.EventRecord, error) {
			return nil, errors.New("db down")
		}
		_, err := agg.RunDaily(ctx)
		Expect(err).To(MatchError(ContainSubstring("db down")))
		Expect(notifier.posts).To(BeEmpty())
	})
})

var _ = Describe("CSVExporter", func() {
	It("stores a CSV with header and returns the public URL", func() {
		id := uuid.MustParse("0b9d4a52-2c4e-4d52-9f3c-4b8a1f7e2d10")
		st := &mockExportStore{id: id}
		e := digest.NewCSVExporter(st, "https://digest.example.com/", time.UTC)

		ts := time.Date(2025, 1, 8, 22, 30, 0, 0, time.UTC)
		url, err := e.Export(context.Background(), "OffHours_20250108_0000", []models.EventRecord{{
			Timestamp:   ts,
			Type:        "page.content_updated",
			EntityID:    "test-page-id",
			UserDisplay: "Alice",
			URL:         models.NotionURL("test-page-id"),
		}})

		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(Equal("https://digest.example.com/exports/" + id.String()))
		Expect(st.name).To(Equal("OffHours_20250108_0000"))
		Expect(string(st.content)).To(Equal(
			"Timestamp,Type,Page/DB ID,User,URL\n" +
				"2025-01-08 22:30:00,page.content_updated,test-page-id,Alice,https://www.notion.so/testpageid\n"))
	})

	It("writes timestamps in the configured zone", func() {
		loc, err := time.LoadLocation("Asia/Tokyo")
		Expect(err).NotTo(HaveOccurred())
		st := &mockExportStore{id: uuid.New()}
		e := digest.NewCSVExporter(st, "https://digest.example.com", loc)

		// 22:30 in Tokyo, read back from the store as UTC.
		ts := time.Date(2025, 1, 1, 13, 30, 0, 0, time.UTC)
		_, err = e.Export(context.Background(), "OffHours_20250101_0000", []models.EventRecord{{
			Timestamp: ts,
			Type:      "page.created",
		}})

		Expect(err).NotTo(HaveOccurred())
		Expect(string(st.content)).To(ContainSubstring("2025-01-01 22:30:00,page.created,,,\n"))
	})
})
