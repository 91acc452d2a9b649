package automation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/models"
)

var ErrInvalidCondition = errors.New("invalid rule condition")

// Conditions compiles and caches rule condition programs.
type Conditions struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func NewConditions() *Conditions {
	return &Conditions{programs: make(map[string]*vm.Program)}
}

// Validate type-checks a condition against the payload of trigger.
// Unknown top-level names are rejected.
func (c *Conditions) Validate(condition, trigger string) error {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return nil
	}
	if _, err := expr.Compile(condition, expr.Env(SampleEnv(trigger)), expr.AsBool()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	return nil
}

// Evaluate runs condition against env. An empty condition is always true.
func (c *Conditions) Evaluate(condition string, env map[string]any) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}

	program, err := c.program(condition)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: condition returned %T", ErrInvalidCondition, out)
	}
	return result, nil
}

func (c *Conditions) program(condition string) (*vm.Program, error) {
	c.mu.RLock()
	if prog, ok := c.programs[condition]; ok {
		c.mu.RUnlock()
		return prog, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if prog, ok := c.programs[condition]; ok {
		return prog, nil
	}

	prog, err := expr.Compile(condition, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	c.programs[condition] = prog
	return prog, nil
}

// SampleEnv returns a payload with the shape an event of the given type carries.
func SampleEnv(trigger string) map[string]any {
	env := map[string]any{
		"client": events.ClientPayload(&models.Client{}),
	}
	switch {
	case strings.HasPrefix(trigger, "invoice."):
		env["invoice"] = events.InvoicePayload(&models.Invoice{})
		env["org"] = events.OrgPayload(&models.Organization{})
		env["total"] = 0.0
		env["balance"] = 0.0
		env["link"] = ""
		env["payment_amount"] = 0.0
	case strings.HasPrefix(trigger, "contract."):
		env["contract"] = events.ContractPayload(&models.Contract{})
		env["link"] = ""
	case strings.HasPrefix(trigger, "booking."):
		env["booking"] = events.BookingPayload(&models.Booking{})
	case strings.HasPrefix(trigger, "gallery."):
		env["gallery"] = events.GalleryPayload(&models.Gallery{})
		env["url"] = ""
	}
	return env
}
