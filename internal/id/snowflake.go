package id

import "github.com/bwmarrin/snowflake"

// Generator produces unique, time-ordered keys.
type Generator interface {
	Next() string
}

// NodeGenerator formats Snowflake ids behind a fixed prefix.
type NodeGenerator struct {
	node   *snowflake.Node
	prefix string
}

func NewGenerator(nodeID int64, prefix string) (*NodeGenerator, error) {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &NodeGenerator{node: n, prefix: prefix}, nil
}

func (g *NodeGenerator) Next() string {
	return g.prefix + g.node.Generate().String()
}
