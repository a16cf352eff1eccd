package tether

import "fmt"

// Negate is a ValueTransformer that inverts booleans in both directions.
// A nil value is treated as false.
func Negate(value any, _ bool) (any, error) {
	switch v := value.(type) {
	case nil:
		return true, nil
	case bool:
		return !v, nil
	default:
		return nil, fmt.Errorf("negate: expected bool, got %T", value)
	}
}

// Chain composes transformers. Forward propagation applies them in order;
// reverse propagation applies them in reverse order.
func Chain(fns ...ValueTransformer) ValueTransformer {
	return func(value any, reverse bool) (any, error) {
		var err error
		for i := range fns {
			fn := fns[i]
			if reverse {
				fn = fns[len(fns)-1-i]
			}
			if value, err = fn(value, reverse); err != nil {
				return nil, err
			}
		}
		return value, nil
	}
}
