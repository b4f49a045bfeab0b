// Package refgen produces payment references from snowflake ids.
package refgen

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/bwmarrin/snowflake"
)

// DefaultPrefix marks references minted by this service.
const DefaultPrefix = "BKG_"

// Generator implements booking.ReferenceSource.
type Generator struct {
	node   *snowflake.Node
	prefix string
}

var _ booking.ReferenceSource = (*Generator)(nil)

// New returns a Generator for nodeID. Each running instance needs its own
// node id (0-1023) for references to stay unique.
func New(nodeID int64, prefix string) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: snowflake node %d: %v", booking.ErrInvalidServiceConfig, nodeID, err)
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}
	return &Generator{node: node, prefix: strings.TrimSpace(prefix)}, nil
}

// NodeIDFromHost maps hostname onto the snowflake node range. Distinct hosts
// can still collide, so fleets should set node ids explicitly.
func NodeIDFromHost(hostname string) int64 {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(strings.ToLower(strings.TrimSpace(hostname))))
	return int64(hash.Sum32() % (1 << snowflake.NodeBits))
}

// NextReference returns a new reference such as BKG_3QZ8RAJ1W2PS.
func (generator *Generator) NextReference() (booking.Reference, error) {
	id := generator.node.Generate()
	return booking.NewReference(generator.prefix + strings.ToUpper(id.Base36()))
}
