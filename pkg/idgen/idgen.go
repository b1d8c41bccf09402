package idgen

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// Generator: источник уникальных id.
type Generator interface {
	Generate() int64
}

type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake: machineID 0..1023, у каждого процесса свой.
func NewSnowflake(machineID int64) (*Snowflake, error) {
	node, err := snowflake.NewNode(machineID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &Snowflake{node: node}, nil
}

func (g *Snowflake) Generate() int64 {
	return g.node.Generate().Int64()
}

// ClientOrderID: id для newClientOrderId, укладывается в 36 символов биржи.
func ClientOrderID(g Generator) string {
	return "te-" + strconv.FormatInt(g.Generate(), 36)
}
