package v1

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/dalia/internal/adapter/llm"
	"github.com/xiaot623/dalia/internal/chat"
)

func readTurn(t *testing.T, conn *websocket.Conn) []chat.Frame {
	t.Helper()
	var frames []chat.Frame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f chat.Frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Type == chat.FrameComplete || f.Type == chat.FrameError {
			return frames
		}
	}
}

func TestChatWebSocket(t *testing.T) {
	env := newTestEnv(t, llm.NewMockClient(), nil)
	server := httptest.NewServer(env.e)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hello"}))
	first := readTurn(t, conn)
	require.GreaterOrEqual(t, len(first), 3)
	assert.Equal(t, chat.FrameStart, first[0].Type)
	id := first[0].ConversationID
	require.NotEmpty(t, id)
	assert.Len(t, first[len(first)-1].Messages, 2)

	// no conversation_id: the connection's conversation continues
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "again"}))
	second := readTurn(t, conn)
	assert.Equal(t, id, second[0].ConversationID)
	assert.Len(t, second[len(second)-1].Messages, 4)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	bad := readTurn(t, conn)
	require.Len(t, bad, 1)
	assert.Equal(t, chat.FrameError, bad[0].Type)
}
