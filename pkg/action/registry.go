package action

import (
	"github.com/openfroyo/installer/pkg/tagged"
)

// TagKey is the JSON field carrying an action's tag.
const TagKey = "action_name"

var registry = tagged.NewRegistry[Action](TagKey, func(a Action) string {
	return a.Tag().String()
})

// Register makes a concrete action decodable from receipts. The factory must
// return a fresh pointer. Call it from the defining package's init.
func Register(tag Tag, factory func() Action) {
	registry.Register(tag.String(), factory)
}

// Registered returns the registered tags in sorted order.
func Registered() []string {
	return registry.Tags()
}

// Encode marshals a into a tagged JSON object.
func Encode(a Action) ([]byte, error) {
	return registry.Encode(a)
}

// Decode builds the registered action named in data.
func Decode(data []byte) (Action, error) {
	return registry.Decode(data)
}
