// Package id выдаёт идентификаторы задач и записей журнала каналов.
package id

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator выдаёт упорядоченные по времени int64, уникальные между узлами с разными nodeID.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator создаёт генератор для узла nodeID (0..1023).
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// NextID возвращает новый идентификатор.
func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}
