package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端，每个客户端对应一个编辑会话。
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *Session
	log     *logrus.Entry

	mu     sync.Mutex // 保护 send 的关闭
	send   chan []byte
	closed bool
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, session *Session) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		session: session,
		log: logrus.WithFields(logrus.Fields{
			"user_id":    session.UserID(),
			"chapter_id": session.ChapterID(),
			"session_id": session.ID(),
		}),
		send: make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// Session 返回客户端的编辑会话
func (c *Client) Session() *Session { return c.session }

// trySend 非阻塞地把消息放入发送队列。队列已满或已关闭时返回 false。
func (c *Client) trySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		c.log.Warn("Client send buffer full, dropping message")
		return false
	}
}

// closeSend 关闭发送队列。WritePump 发完剩余消息后发送关闭帧并退出。可以重复调用。
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		// 请求 Hub 注销此客户端
		c.hub.queueBlocking(HubMessage{Type: MessageUnregister, Client: c})
		c.conn.Close()
		c.log.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.log.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.log.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		// 编辑必须按顺序进入引擎，不能丢弃，所以这里阻塞发送
		if !c.hub.queueBlocking(HubMessage{Type: MessageClient, Client: c, RawData: message}) {
			break
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被关闭，发送关闭帧
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
