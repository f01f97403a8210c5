package ocppj

import (
	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/task"
)

// Encoder turns commands into CALL frames. The unique id is the decimal
// task id so answers can be correlated without extra state.
type Encoder struct{}

// Encode implements dispatch.Encoder.
func (Encoder) Encode(id task.ID, _ string, cmd command.Command) ([]byte, error) {
	return NewCall(id.String(), string(cmd.Kind()), cmd)
}
