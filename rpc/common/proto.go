package common

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dInv/lib/queue"
	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/ValentinKolb/dInv/rpc/serializer"
)

// --------------------------------------------------------------------------
// Command Structure
// --------------------------------------------------------------------------

// Command is a parsed client request. Which fields are used depends on the type of the command.
type Command struct {
	// Type of command
	CmdType CommandType

	Username string     // Used for: Auth
	Password string     // Used for: Auth
	ID       int64      // Used for: Get, Del
	Item     store.Item // Used for: Put, Mod (the id is only meaningful for Mod)

	// Err is set if the verb was recognized but its arguments are malformed
	Err error

	// Raw holds the request bytes as read from the wire
	Raw []byte
}

// ErrMalformed is wrapped by Command.Err for every malformed argument
var ErrMalformed = errors.New("malformed command")

var itemCodec = serializer.NewTextSerializer()

// ParseCommand converts a single request into a Command.
// It never fails: unknown verbs yield CmdTUnknown, known verbs with bad arguments carry Err.
func ParseCommand(raw []byte) Command {
	cmd := Command{Raw: raw}

	verb, rest := splitVerb(raw)
	switch verb {
	case "AUTH":
		fields := strings.Fields(trimArgs(rest))
		if len(fields) != 2 {
			return malformed(cmd, CmdTAuth, "expected AUTH <username> <password>")
		}
		cmd.CmdType = CmdTAuth
		cmd.Username, cmd.Password = fields[0], fields[1]

	case "GET":
		arg := trimArgs(rest)
		if arg == "ALL" {
			cmd.CmdType = CmdTGetAll
			return cmd
		}
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return malformed(cmd, CmdTGet, "expected GET ALL or GET <id>")
		}
		cmd.CmdType = CmdTGet
		cmd.ID = id

	case "PUT", "MOD":
		cmd.CmdType = CmdTPut
		if verb == "MOD" {
			cmd.CmdType = CmdTMod
		}
		// the payload is everything up to the first record separator
		if i := bytes.IndexByte(rest, serializer.RecordSeparator); i >= 0 {
			rest = rest[:i]
		}
		if len(bytes.TrimSpace(rest)) == 0 {
			return malformed(cmd, cmd.CmdType, "missing item payload")
		}
		item, err := itemCodec.Deserialize(rest)
		if err != nil {
			return malformed(cmd, cmd.CmdType, err.Error())
		}
		cmd.Item = item

	case "DEL":
		id, err := strconv.ParseInt(trimArgs(rest), 10, 64)
		if err != nil {
			return malformed(cmd, CmdTDel, "expected DEL <id>")
		}
		cmd.CmdType = CmdTDel
		cmd.ID = id

	case "TERM":
		cmd.CmdType = CmdTTerm

	case "SYNC":
		cmd.CmdType = CmdTSync

	default:
		cmd.CmdType = CmdTUnknown
	}
	return cmd
}

// SplitRequest frames requests on a session stream (base.SplitFunc).
// PUT and MOD end with the record separator of their item. Every other request ends with a
// newline or, for clients that send one request per write, with the data read so far.
// Whitespace between requests is skipped.
func SplitRequest(data []byte) (int, []byte, error) {
	start := 0
	for start < len(data) && isRequestSpace(data[start]) {
		start++
	}
	if start > 0 {
		return start, nil, nil
	}

	verb, _ := splitVerb(data)
	if verb == "PUT" || verb == "MOD" {
		if i := bytes.IndexByte(data, serializer.RecordSeparator); i >= 0 {
			return i + 1, data[:i+1], nil
		}
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	return len(data), data, nil
}

func isRequestSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == 0
}

// splitVerb returns the first token of the request and everything after the separating space
func splitVerb(raw []byte) (string, []byte) {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	end := bytes.IndexAny(raw, " \t\r\n\x00")
	if end < 0 {
		return string(raw), nil
	}
	return string(raw[:end]), raw[end+1:]
}

func trimArgs(b []byte) string {
	return strings.Trim(string(b), " \t\r\n\x00")
}

func malformed(cmd Command, t CommandType, msg string) Command {
	cmd.CmdType = t
	cmd.Err = fmt.Errorf("%w: %s", ErrMalformed, msg)
	return cmd
}

// --------------------------------------------------------------------------
// Request Factory Functions (client side wire format)
// --------------------------------------------------------------------------

// NewAuthRequest creates a new Auth request
func NewAuthRequest(username, password string) []byte {
	return []byte("AUTH " + username + " " + password)
}

// NewGetAllRequest creates a new GetAll request
func NewGetAllRequest() []byte {
	return []byte("GET ALL")
}

// NewGetRequest creates a new Get request
func NewGetRequest(id int64) []byte {
	return []byte("GET " + strconv.FormatInt(id, 10))
}

// NewPutRequest creates a new Put request. The id of the item is ignored by the server.
func NewPutRequest(item store.Item) []byte {
	return append([]byte("PUT "), itemCodec.Serialize(item)...)
}

// NewModRequest creates a new Mod request
func NewModRequest(item store.Item) []byte {
	return append([]byte("MOD "), itemCodec.Serialize(item)...)
}

// NewDelRequest creates a new Del request
func NewDelRequest(id int64) []byte {
	return []byte("DEL " + strconv.FormatInt(id, 10))
}

// NewTermRequest creates a new Term request
func NewTermRequest() []byte {
	return []byte("TERM")
}

// NewSyncRequest creates a new Sync request
func NewSyncRequest() []byte {
	return []byte("SYNC")
}

// --------------------------------------------------------------------------
// Replies
// --------------------------------------------------------------------------

const (
	ReplySuccess = "SUCCESS"
	ReplyFailure = "FAILURE"

	// failure reasons
	ReasonUnknownCommand = "UNKNOWN_COMMAND"
	ReasonBusy           = "BUSY"
	ReasonTimeout        = "TIMEOUT"
	ReasonShutdown       = "SHUTDOWN"
)

// Reply is the response text written verbatim to the client
type Reply struct {
	Payload []byte
}

// Ok returns true if the reply starts with SUCCESS
func (r *Reply) Ok() bool {
	return bytes.HasPrefix(r.Payload, []byte(ReplySuccess))
}

// IsPlainSuccess returns true if the reply is exactly SUCCESS (the only reply that completes a login)
func (r *Reply) IsPlainSuccess() bool {
	return string(r.Payload) == ReplySuccess
}

func (r *Reply) String() string {
	return string(r.Payload)
}

// NewSuccessReply creates a plain SUCCESS reply
func NewSuccessReply() *Reply {
	return &Reply{Payload: []byte(ReplySuccess)}
}

// NewFailureReply creates a FAILURE reply, the reason is appended after a space if given
func NewFailureReply(reason string) *Reply {
	if reason == "" {
		return &Reply{Payload: []byte(ReplyFailure)}
	}
	return &Reply{Payload: []byte(ReplyFailure + " " + reason)}
}

// NewIDReply creates the reply to a successful PUT
func NewIDReply(id int64) *Reply {
	return &Reply{Payload: []byte(ReplySuccess + "\n" + strconv.FormatInt(id, 10))}
}

// NewItemReply creates the reply to a successful GET <id>.
// The record is terminated with the group separator like every other reply carrying records.
func NewItemReply(item store.Item) *Reply {
	return &Reply{Payload: append([]byte(ReplySuccess+"\n"), itemCodec.SerializeBatch([]store.Item{item})...)}
}

// NewBatchReply creates the reply to GET ALL
func NewBatchReply(items []store.Item) *Reply {
	return &Reply{Payload: append([]byte(ReplySuccess+" "), itemCodec.SerializeBatch(items)...)}
}

// ParseItemReply decodes the records of a GET reply (either form)
func ParseItemReply(payload []byte) ([]store.Item, error) {
	var body []byte
	switch {
	case bytes.HasPrefix(payload, []byte(ReplySuccess+" ")), bytes.HasPrefix(payload, []byte(ReplySuccess+"\n")):
		body = payload[len(ReplySuccess)+1:]
	default:
		return nil, fmt.Errorf("unexpected reply %q", truncate(payload, 64))
	}
	return itemCodec.DeserializeBatch(body)
}

// ParseIDReply extracts the new id from a PUT reply
func ParseIDReply(payload []byte) (int64, error) {
	if !bytes.HasPrefix(payload, []byte(ReplySuccess+"\n")) {
		return 0, fmt.Errorf("unexpected reply %q", truncate(payload, 64))
	}
	return strconv.ParseInt(strings.TrimSpace(string(payload[len(ReplySuccess)+1:])), 10, 64)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// --------------------------------------------------------------------------
// Request (queue message)
// --------------------------------------------------------------------------

// Request is the message put on the request mailbox of the database worker.
// Ownership passes to the mailbox on Put and to the worker on Get.
type Request struct {
	Cmd Command
	// ReplyTo receives exactly one reply. Nil for fire-and-forget requests (timer-issued SYNC).
	ReplyTo *queue.Mailbox[Reply]
	// Enqueued is the time the request was put, used for the latency metric
	Enqueued time.Time
}

// NewRequest parses raw and creates a request replying to replyTo
func NewRequest(raw []byte, replyTo *queue.Mailbox[Reply]) *Request {
	return &Request{
		Cmd:      ParseCommand(raw),
		ReplyTo:  replyTo,
		Enqueued: time.Now(),
	}
}

// Respond delivers the reply if the request carries a reply mailbox.
// Returns false if there is no reply mailbox or it was already closed by its session.
func (r *Request) Respond(reply *Reply) bool {
	if r.ReplyTo == nil {
		return false
	}
	return r.ReplyTo.Put(reply)
}

// --------------------------------------------------------------------------
// Command Types
// --------------------------------------------------------------------------

// CommandType defines the verb of a command
type CommandType uint8

const (
	CmdTUnknown CommandType = iota // Unrecognized verb
	CmdTAuth                       // Log in
	CmdTGetAll                     // Get every item
	CmdTGet                        // Get an item by id
	CmdTPut                        // Insert an item
	CmdTMod                        // Modify an item
	CmdTDel                        // Delete an item
	CmdTTerm                       // Shut the server down
	CmdTSync                       // Replicate the store to the backup peer
)

// String returns the string representation of a CommandType.
func (t CommandType) String() string {
	switch t {
	case CmdTAuth:
		return "AUTH"
	case CmdTGetAll:
		return "GET_ALL"
	case CmdTGet:
		return "GET"
	case CmdTPut:
		return "PUT"
	case CmdTMod:
		return "MOD"
	case CmdTDel:
		return "DEL"
	case CmdTTerm:
		return "TERM"
	case CmdTSync:
		return "SYNC"
	default:
		return "UNKNOWN"
	}
}
