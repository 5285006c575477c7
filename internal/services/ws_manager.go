package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type WSMessage struct {
	Type string      `json:"type"` // auth/order_status/donation_status/pong
	Data interface{} `json:"data"`
}

// wsConn gorilla 连接不支持并发写，写锁按连接隔离
type wsConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.WriteJSON(v)
}

// WSManager 会员终端连接表，订单状态变化后推送给订单所属会员
type WSManager struct {
	connections     map[TerminalKey]*wsConn
	userIndex       map[uint][]TerminalKey
	cleanupInterval time.Duration
	jwt             JWTService
	sync.RWMutex
}

func NewWsManager(ctx context.Context, jwt JWTService, cleanupInterval time.Duration) *WSManager {
	m := &WSManager{
		cleanupInterval: cleanupInterval,
		jwt:             jwt,
		connections:     make(map[TerminalKey]*wsConn),
		userIndex:       make(map[uint][]TerminalKey),
	}
	m.start(ctx)
	return m
}

type TerminalKey struct {
	UserID uint
	Random string // 随机短串
}

func (t TerminalKey) String() string {
	return fmt.Sprintf("%d:%s", t.UserID, t.Random)
}

func (m *WSManager) SetConnection(key TerminalKey, conn *wsConn) {
	m.Lock()
	defer m.Unlock()
	m.connections[key] = conn
	m.userIndex[key.UserID] = append(m.userIndex[key.UserID], key)
}

func (m *WSManager) GetConnectionsByUser(userID uint) []*wsConn {
	m.RLock()
	defer m.RUnlock()

	var conns []*wsConn
	for _, key := range m.userIndex[userID] {
		if conn, ok := m.connections[key]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// RemoveConnection 删除连接并同步清理索引
func (m *WSManager) RemoveConnection(key TerminalKey) {
	m.Lock()
	defer m.Unlock()
	m.removeLocked(key)
}

func (m *WSManager) removeLocked(key TerminalKey) {
	delete(m.connections, key)
	keys := m.userIndex[key.UserID]
	kept := keys[:0]
	for _, k := range keys {
		if k != key {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		delete(m.userIndex, key.UserID)
	} else {
		m.userIndex[key.UserID] = kept
	}
}

func (m *WSManager) ConnectionCount(userID uint) int {
	m.RLock()
	defer m.RUnlock()
	return len(m.userIndex[userID])
}

// AuthenticateAndRegister 首帧 {"token": "..."} 鉴权，5 秒内未完成即断开
func (m *WSManager) AuthenticateAndRegister(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}

	var auth struct {
		Token string `json:"token"`
	}
	if json.Unmarshal(msg, &auth) != nil || auth.Token == "" {
		closeWithPolicy(conn, "Invalid auth msg")
		return
	}
	userID, err := m.jwt.ValidateToken(auth.Token)
	if err != nil {
		closeWithPolicy(conn, "Invalid Token")
		return
	}

	key := TerminalKey{UserID: userID, Random: uuid.New().String()[:8]}
	c := &wsConn{Conn: conn}
	m.SetConnection(key, c)
	if err := c.writeJSON(WSMessage{Type: "auth", Data: map[string]interface{}{"terminal_key": key.String()}}); err != nil {
		slog.Error("push auth msg failed", "error", err)
	}

	go m.handleConnection(key, c)
}

func closeWithPolicy(conn *websocket.Conn, reason string) {
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	conn.Close()
}

// handleConnection 客户端只发 ping，其余消息忽略
func (m *WSManager) handleConnection(key TerminalKey, conn *wsConn) {
	defer func() {
		m.RemoveConnection(key)
		conn.Close()
	}()
	conn.SetReadDeadline(time.Time{})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("ws terminal disconnected", "key", key.String(), "error", err)
			}
			return
		}
		var in WSMessage
		if err := json.Unmarshal(msg, &in); err != nil {
			slog.Debug("ignore malformed ws message", "key", key.String())
			continue
		}
		if in.Type == "ping" {
			if err := conn.writeJSON(WSMessage{Type: "pong"}); err != nil {
				slog.Warn("ws pong failed", "key", key.String(), "error", err)
			}
		}
	}
}

// BroadcastToUser 向会员所有终端推送，部分失败返回汇总错误
func (m *WSManager) BroadcastToUser(userID uint, v interface{}) error {
	var errs []error
	for _, conn := range m.GetConnectionsByUser(userID) {
		if err := conn.writeJSON(v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("broadcast to user %d partially failed: %v", userID, errs)
	}
	return nil
}

// Publish 实现 EventSink；捐款可匿名，无会员时不推送
func (m *WSManager) Publish(evt StatusEvent) error {
	if evt.UserID == 0 {
		return nil
	}
	return m.BroadcastToUser(evt.UserID, WSMessage{Type: string(evt.Kind) + "_status", Data: evt})
}

func (m *WSManager) start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.cleanupDeadConnections()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *WSManager) cleanupDeadConnections() {
	m.Lock()
	defer m.Unlock()
	for key, conn := range m.connections {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(100*time.Millisecond)); err != nil {
			m.removeLocked(key)
			conn.Close()
		}
	}
}
