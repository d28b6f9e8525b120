package engine

import (
	"github.com/openfroyo/installer/pkg/tagged"
)

// PlannerTagKey is the JSON field carrying a planner's tag.
const PlannerTagKey = "planner"

var planners = tagged.NewRegistry[Planner](PlannerTagKey, func(p Planner) string {
	return p.Tag()
})

// RegisterPlanner makes a planner decodable from receipts. The factory must
// return a fresh pointer.
func RegisterPlanner(tag string, factory func() Planner) {
	planners.Register(tag, factory)
}

// Planners returns the registered planner tags in sorted order.
func Planners() []string {
	return planners.Tags()
}
