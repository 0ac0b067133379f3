// Copyright 2026 OfflineCache Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"offlinecache/internal/clients"
	"offlinecache/internal/controller"
	"offlinecache/internal/notify"
	"offlinecache/internal/storage"
)

// Request types
const (
	RequestStatus            = "status"
	RequestStop              = "stop"
	RequestMessage           = "message"            // Post a control message to the controller
	RequestPush              = "push"               // Deliver a push event
	RequestNotifications     = "notifications"      // List shown notifications
	RequestNotificationClick = "notification_click" // Click a shown notification
	RequestGenerations       = "generations"        // List cache generations
	RequestSync              = "sync"               // Fire a background sync
	RequestNetwork           = "network"            // Switch simulated network state
	RequestUpdate            = "update"             // Reload settings and install a new controller
	RequestReloadConfig      = "reload_config"      // Reload log level from disk
)

// Request represents an IPC request
type Request struct {
	Type string `json:"type"`

	MessageType    string  `json:"message_type,omitempty"`    // message: control message type, e.g. SKIP_WAITING
	Payload        *string `json:"payload,omitempty"`         // push: text payload, nil for a data-less push
	NotificationID string  `json:"notification_id,omitempty"` // notification_click
	Tag            string  `json:"tag,omitempty"`             // sync
	Offline        bool    `json:"offline,omitempty"`         // network
}

// ControllerStatus describes one controller version.
type ControllerStatus struct {
	ID          string           `json:"id"`
	Generation  string           `json:"generation"`
	State       controller.State `json:"state"`
	SkipWaiting bool             `json:"skip_waiting"`
	Stats       controller.Stats `json:"stats"`
}

// GenerationInfo describes one cache generation.
type GenerationInfo struct {
	Name      string    `json:"name"`
	Current   bool      `json:"current"`
	Entries   int       `json:"entries"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Response represents an IPC response
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	PID     int    `json:"pid,omitempty"`

	// status
	InstanceID string            `json:"instance_id,omitempty"`
	Listen     string            `json:"listen,omitempty"`
	Origin     string            `json:"origin,omitempty"`
	Storage    string            `json:"storage,omitempty"`
	Offline    bool              `json:"offline,omitempty"`
	Active     *ControllerStatus `json:"active,omitempty"`
	Waiting    *ControllerStatus `json:"waiting,omitempty"`
	Clients    []clients.Client  `json:"clients,omitempty"`

	Notifications []notify.Notification `json:"notifications,omitempty"` // push, notifications
	Generations   []GenerationInfo      `json:"generations,omitempty"`   // generations
}

// GenerationInfos converts storage statistics, marking the current generation.
func GenerationInfos(stats []storage.StoreStat, current string) []GenerationInfo {
	out := make([]GenerationInfo, 0, len(stats))
	for _, s := range stats {
		out = append(out, GenerationInfo{
			Name:      s.Name,
			Current:   s.Name == current,
			Entries:   s.Entries,
			Bytes:     s.Bytes,
			CreatedAt: s.CreatedAt,
		})
	}
	return out
}

// Server is the IPC server
type Server struct {
	listener net.Listener
	handler  func(*Request) *Response
}

// NewServer creates a new IPC server
func NewServer(handler func(*Request) *Response) *Server {
	return &Server{handler: handler}
}

// Start starts the IPC server
func (s *Server) Start() error {
	os.Remove(SocketPath())

	listener, err := net.Listen("unix", SocketPath())
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	os.Chmod(SocketPath(), 0600)

	go s.accept()
	return nil
}

// Stop stops the IPC server
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
		os.Remove(SocketPath())
	}
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // Server stopped
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return
	}
	resp := s.handler(&req)
	json.NewEncoder(conn).Encode(resp)
}

// Client is the IPC client
type Client struct {
	conn net.Conn
}

// Connect connects to the daemon
func Connect() (*Client, error) {
	conn, err := net.Dial("unix", SocketPath())
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send sends a request and returns the response
func (c *Client) Send(req *Request) (*Response, error) {
	if err := json.NewEncoder(c.conn).Encode(req); err != nil {
		return nil, err
	}

	var resp Response
	if err := json.NewDecoder(c.conn).Decode(&resp); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("daemon closed connection")
		}
		return nil, err
	}
	return &resp, nil
}

// sendOK sends req and turns an unsuccessful response into an error.
func (c *Client) sendOK(req *Request) (*Response, error) {
	resp, err := c.Send(req)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}

// Status requests the daemon status
func (c *Client) Status() (*Response, error) {
	return c.Send(&Request{Type: RequestStatus})
}

// Stop asks the daemon to shut down
func (c *Client) Stop() (*Response, error) {
	return c.Send(&Request{Type: RequestStop})
}

// PostMessage posts a control message such as SKIP_WAITING.
func (c *Client) PostMessage(messageType string) (*Response, error) {
	return c.sendOK(&Request{Type: RequestMessage, MessageType: messageType})
}

// Push delivers a push event. A nil payload is a push without data.
func (c *Client) Push(payload *string) (*notify.Notification, error) {
	resp, err := c.sendOK(&Request{Type: RequestPush, Payload: payload})
	if err != nil {
		return nil, err
	}
	if len(resp.Notifications) == 0 {
		return nil, fmt.Errorf("daemon returned no notification")
	}
	return &resp.Notifications[0], nil
}

// Notifications lists shown notifications.
func (c *Client) Notifications() ([]notify.Notification, error) {
	resp, err := c.sendOK(&Request{Type: RequestNotifications})
	if err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}

// ClickNotification clicks a shown notification.
func (c *Client) ClickNotification(id string) (*Response, error) {
	return c.sendOK(&Request{Type: RequestNotificationClick, NotificationID: id})
}

// Generations lists cache generations.
func (c *Client) Generations() ([]GenerationInfo, error) {
	resp, err := c.sendOK(&Request{Type: RequestGenerations})
	if err != nil {
		return nil, err
	}
	return resp.Generations, nil
}

// Sync fires a background sync with tag.
func (c *Client) Sync(tag string) (*Response, error) {
	return c.sendOK(&Request{Type: RequestSync, Tag: tag})
}

// SetOffline switches the simulated network state.
func (c *Client) SetOffline(offline bool) (*Response, error) {
	return c.sendOK(&Request{Type: RequestNetwork, Offline: offline})
}

// Update reloads settings and installs a new controller version.
func (c *Client) Update() (*Response, error) {
	return c.sendOK(&Request{Type: RequestUpdate})
}

// ReloadConfig asks the daemon to reload its log configuration.
func (c *Client) ReloadConfig() error {
	_, err := c.sendOK(&Request{Type: RequestReloadConfig})
	return err
}

// IsDaemonRunning checks if the daemon is running
func IsDaemonRunning() bool {
	client, err := Connect()
	if err != nil {
		return false
	}
	client.Close()
	return true
}
