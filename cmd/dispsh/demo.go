package main

import (
	"errors"

	"github.com/podhmo/go-activex"
	"github.com/podhmo/go-activex/bridge"
	"github.com/podhmo/go-activex/oleaut"
)

const demoClass = "Demo.Calculator"

// calculator is the object behind the demo class.
type calculator struct {
	Accumulator float64
	History     []float64
}

func (c *calculator) apply(v float64) float64 {
	c.Accumulator = v
	c.History = append(c.History, v)
	return v
}

func (c *calculator) Add(x float64) float64 { return c.apply(c.Accumulator + x) }
func (c *calculator) Sub(x float64) float64 { return c.apply(c.Accumulator - x) }
func (c *calculator) Mul(x float64) float64 { return c.apply(c.Accumulator * x) }

func (c *calculator) Div(x float64) (float64, error) {
	if x == 0 {
		return 0, errors.New("division by zero")
	}
	return c.apply(c.Accumulator / x), nil
}

func (c *calculator) Clear() {
	c.Accumulator = 0
	c.History = nil
}

func registerDemo(r *activex.Registry) {
	r.Register(demoClass, func() (oleaut.Dispatch, error) {
		obj, err := bridge.New(&calculator{})
		if err != nil {
			return nil, err
		}
		return obj, nil
	})
}
