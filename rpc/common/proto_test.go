package common

import (
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/dInv/lib/queue"
	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	sword := store.Item{ID: 7, Name: "Sword", Damage: 12, CritChance: 0.25, Range: 2, Description: "sharp"}

	tests := []struct {
		name     string
		raw      string
		wantType CommandType
		wantErr  bool
		check    func(t *testing.T, cmd Command)
	}{
		{"auth", "AUTH esnyder abcd123", CmdTAuth, false, func(t *testing.T, cmd Command) {
			assert.Equal(t, "esnyder", cmd.Username)
			assert.Equal(t, "abcd123", cmd.Password)
		}},
		{"auth with newline", "AUTH esnyder abcd123\r\n", CmdTAuth, false, func(t *testing.T, cmd Command) {
			assert.Equal(t, "abcd123", cmd.Password)
		}},
		{"auth missing password", "AUTH esnyder", CmdTAuth, true, nil},
		{"get all", "GET ALL", CmdTGetAll, false, nil},
		{"get id", "GET 42\n", CmdTGet, false, func(t *testing.T, cmd Command) {
			assert.Equal(t, int64(42), cmd.ID)
		}},
		{"get garbage", "GET sword", CmdTGet, true, nil},
		{"get nothing", "GET", CmdTGet, true, nil},
		{"put", string(NewPutRequest(sword)), CmdTPut, false, func(t *testing.T, cmd Command) {
			assert.Equal(t, sword, cmd.Item)
		}},
		{"put empty", "PUT ", CmdTPut, true, nil},
		{"put malformed", "PUT x\nSword\x1e", CmdTPut, true, nil},
		{"put without id line", "PUT Sword\n0\n0\n0\n150\n12\n0.250000\n2\nsharp\x1e", CmdTPut, true, nil},
		{"mod", string(NewModRequest(sword)), CmdTMod, false, func(t *testing.T, cmd Command) {
			assert.Equal(t, sword, cmd.Item)
		}},
		{"del", "DEL 3", CmdTDel, false, func(t *testing.T, cmd Command) {
			assert.Equal(t, int64(3), cmd.ID)
		}},
		{"del missing id", "DEL", CmdTDel, true, nil},
		{"term", "TERM", CmdTTerm, false, nil},
		{"term with argument", "TERM now", CmdTTerm, false, nil},
		{"sync", "SYNC\n", CmdTSync, false, nil},
		{"unknown", "DROP TABLE items", CmdTUnknown, false, nil},
		{"lowercase verb", "get ALL", CmdTUnknown, false, nil},
		{"empty", "", CmdTUnknown, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := ParseCommand([]byte(tt.raw))
			assert.Equal(t, tt.wantType, cmd.CmdType)
			if tt.wantErr {
				assert.True(t, errors.Is(cmd.Err, ErrMalformed), "expected malformed error, got %v", cmd.Err)
			} else {
				assert.NoError(t, cmd.Err)
			}
			if tt.check != nil {
				tt.check(t, cmd)
			}
		})
	}
}

func TestReplies(t *testing.T) {
	assert.Equal(t, "SUCCESS", NewSuccessReply().String())
	assert.Equal(t, "FAILURE", NewFailureReply("").String())
	assert.Equal(t, "FAILURE BUSY", NewFailureReply(ReasonBusy).String())
	assert.Equal(t, "SUCCESS\n17", NewIDReply(17).String())

	assert.True(t, NewSuccessReply().IsPlainSuccess())
	assert.True(t, NewIDReply(1).Ok())
	assert.False(t, NewIDReply(1).IsPlainSuccess())
	assert.False(t, NewFailureReply("").Ok())

	empty := NewBatchReply(nil)
	assert.Equal(t, "SUCCESS \x1d", empty.String())

	item := store.Item{ID: 1, Name: "Sword", CritChance: 0.5, Description: "d"}
	single := NewItemReply(item)
	assert.Equal(t, "SUCCESS\n1\nSword\n0\n0\n0\n0\n0\n0.500000\n0\nd\x1d", single.String())

	items, err := ParseItemReply(single.Payload)
	require.NoError(t, err)
	assert.Equal(t, []store.Item{item}, items)

	items, err = ParseItemReply(NewBatchReply([]store.Item{item, item}).Payload)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = ParseItemReply([]byte("FAILURE"))
	assert.Error(t, err)

	id, err := ParseIDReply(NewIDReply(99).Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
}

func TestRequestRespond(t *testing.T) {
	fireAndForget := NewRequest(NewSyncRequest(), nil)
	assert.False(t, fireAndForget.Respond(NewSuccessReply()))

	mb := queue.NewMailbox[Reply]()
	req := NewRequest(NewGetAllRequest(), mb)
	assert.Equal(t, CmdTGetAll, req.Cmd.CmdType)
	assert.WithinDuration(t, time.Now(), req.Enqueued, time.Second)

	require.True(t, req.Respond(NewSuccessReply()))
	reply, ok := mb.Get()
	require.True(t, ok)
	assert.True(t, reply.IsPlainSuccess())

	mb.Close()
	assert.False(t, req.Respond(NewSuccessReply()))
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"24:H", 24 * time.Hour, false},
		{"30:m", 30 * time.Minute, false},
		{"15:S", 15 * time.Second, false},
		{"0:H", 0, false},
		{"90s", 90 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"", 0, true},
		{"24:D", 0, true},
		{"x:H", 0, true},
		{"-1:H", 0, true},
		{"tomorrow", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerConfig(t *testing.T) {
	c := DefaultServerConfig()
	assert.Error(t, c.Validate(), "missing certificate must be rejected")

	c.TLS.CertFile, c.TLS.KeyFile = "cert.pem", "key.pem"
	c.Backup.PSK = "topsecret"
	require.NoError(t, c.Validate())

	s := c.String()
	assert.Contains(t, s, "0.0.0.0:4466")
	assert.Contains(t, s, "items.db")
	assert.NotContains(t, s, "topsecret")

	c.LogLevel = "verbose"
	assert.Error(t, c.Validate())
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error"} {
		_, err := ParseLogLevel(level)
		assert.NoError(t, err, level)
	}
	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
	assert.Error(t, InitLoggers("trace"))
}

func TestSplitRequest(t *testing.T) {
	put := NewPutRequest(store.Item{Name: "Tome", Description: "line"})

	tests := []struct {
		name        string
		data        string
		wantAdvance int
		wantRequest string
		wantNil     bool
	}{
		{name: "request per write", data: "GET ALL", wantAdvance: 7, wantRequest: "GET ALL"},
		{name: "newline terminated", data: "GET 1\nDEL 1\n", wantAdvance: 6, wantRequest: "GET 1"},
		{name: "whitespace between requests", data: "\r\n GET 1", wantAdvance: 3, wantNil: true},
		{name: "complete put", data: string(put) + "GET 1\n", wantAdvance: len(put), wantRequest: string(put)},
		{name: "put waits for its record separator", data: "PUT 0\nTome\n0\n", wantAdvance: 0, wantNil: true},
		{name: "mod waits for its record separator", data: "MOD 1\nTome", wantAdvance: 0, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advance, request, err := SplitRequest([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantAdvance, advance)
			if tt.wantNil {
				assert.Nil(t, request)
				return
			}
			assert.Equal(t, tt.wantRequest, string(request))
		})
	}
}
