package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/calder-io/steward/internal/domain"
)

// heartbeatFrame is the comment-only keep-alive unit. It carries no id and
// no event type, so clients never dispatch it.
var heartbeatFrame = []byte(": keepalive\n\n")

// encodeFrame renders one event as an SSE frame. Synthetic events (id 0)
// omit the id field so they never disturb a client's last-seen position.
func encodeFrame(evt domain.Event) []byte {
	var b bytes.Buffer
	if evt.ID > 0 {
		fmt.Fprintf(&b, "id: %d\n", evt.ID)
	}
	fmt.Fprintf(&b, "event: %s\n", evt.Type)
	data, err := json.Marshal(evt)
	if err != nil {
		// Stored payloads are validated at append time, so this only
		// guards the synthetic path.
		data = []byte(fmt.Sprintf(`{"id":%d,"type":%q}`, evt.ID, evt.Type))
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)
	return b.Bytes()
}
