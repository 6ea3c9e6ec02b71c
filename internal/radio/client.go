// Package radio is the network transport to a modem daemon. It speaks a
// line-oriented protocol over TCP: every message is a block of
// "Key: Value" lines closed by an empty line. Requests carry an ActionID
// that the daemon echoes in its response; call-list and radio-power
// changes arrive as unsolicited events.
package radio

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callcore/internal/config"
	"callcore/internal/logging"
	"callcore/internal/telephony"
)

// ErrNotConnected completes every request issued while the link is down,
// and every request in flight when it drops.
var ErrNotConnected = errors.New("radio: not connected to modem daemon")

// Message is one protocol block.
type Message map[string]string

// Client implements telephony.Radio and telephony.FailCauseReporter over
// a daemon connection.
type Client struct {
	config *config.RadioConfig
	phone  string
	log    *logrus.Entry

	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	connected bool
	radioOn   bool
	listener  telephony.RadioListener
	pending   map[string]func(Message, error)
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for phone. Connect must be called before use.
func NewClient(phone string, cfg *config.RadioConfig) *Client {
	return &Client{
		config:  cfg,
		phone:   phone,
		log:     logging.For("radio").WithField("phone", phone),
		pending: make(map[string]func(Message, error)),
		done:    make(chan struct{}),
	}
}

// Connect dials the daemon, reads its banner, logs in when credentials are
// configured and starts the reader. The radio power state is queried once
// the link is up.
func (c *Client) Connect() error {
	addr := c.config.Address()
	c.log.Infof("Connecting to %s", addr)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	if _, err := reader.ReadString('\n'); err != nil {
		conn.Close()
		return fmt.Errorf("reading banner: %w", err)
	}
	if c.config.Username != "" {
		if err := login(reader, writer, c.config.Username, c.config.Secret); err != nil {
			conn.Close()
			return err
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = reader
	c.writer = writer
	c.connected = true
	c.mu.Unlock()
	c.log.Info("Connected")

	go c.readLoop(reader)
	c.queryRadioState()
	return nil
}

func login(r *bufio.Reader, w *bufio.Writer, user, secret string) error {
	if err := writeMessage(w, Message{"Action": "Login", "Username": user, "Secret": secret}); err != nil {
		return err
	}
	resp, err := readMessage(r)
	if err != nil {
		return err
	}
	if resp["Response"] != "Success" {
		return fmt.Errorf("login failed: %s", resp["Message"])
	}
	return nil
}

// readMessage reads one block. Lines without ": " are ignored.
func readMessage(r *bufio.Reader) (Message, error) {
	msg := make(Message)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if len(msg) == 0 {
				continue
			}
			return msg, nil
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) == 2 {
			msg[parts[0]] = parts[1]
		}
	}
}

// writeMessage writes msg with Action first, then the remaining keys in a
// stable order.
func writeMessage(w *bufio.Writer, msg Message) error {
	var b strings.Builder
	if a, ok := msg["Action"]; ok {
		fmt.Fprintf(&b, "Action: %s\r\n", a)
	}
	for _, k := range sortedKeys(msg) {
		if k == "Action" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", k, msg[k])
	}
	b.WriteString("\r\n")
	if _, err := w.WriteString(b.String()); err != nil {
		return err
	}
	return w.Flush()
}

func (c *Client) readLoop(r *bufio.Reader) {
	for {
		msg, err := readMessage(r)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.log.WithError(err).Warn("Connection lost")
			c.reconnect()
			return
		}
		if _, ok := msg["Event"]; ok {
			c.handleEvent(msg)
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch hands a response to the request that carries its ActionID.
func (c *Client) dispatch(msg Message) {
	id := msg["ActionID"]
	c.mu.Lock()
	fn, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		c.log.Debugf("Response for unknown action %q", id)
		return
	}
	var err error
	if msg["Response"] != "Success" {
		err = fmt.Errorf("radio: %s", msg["Message"])
	}
	fn(msg, err)
}

// reconnect fails everything in flight, reports the radio as off and
// retries until Close.
func (c *Client) reconnect() {
	c.mu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	pending := c.pending
	c.pending = make(map[string]func(Message, error))
	wasOn := c.radioOn
	c.radioOn = false
	l := c.listener
	c.mu.Unlock()

	for _, fn := range pending {
		fn(nil, ErrNotConnected)
	}
	if wasOn && l != nil {
		l.OnRadioStateChanged(false)
	}

	interval := time.Duration(c.config.ReconnectInterval) * time.Second
	for {
		c.log.Infof("Reconnecting in %s", interval)
		select {
		case <-c.done:
			return
		case <-time.After(interval):
		}
		if err := c.Connect(); err != nil {
			c.log.WithError(err).Warn("Reconnect failed")
			continue
		}
		return
	}
}

// send registers fn under a fresh ActionID and writes the request. fn is
// invoked with ErrNotConnected when the link is down.
func (c *Client) send(msg Message, fn func(Message, error)) {
	id := newActionID()
	msg["ActionID"] = id

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		fn(nil, ErrNotConnected)
		return
	}
	c.pending[id] = fn
	err := writeMessage(c.writer, msg)
	if err != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if err != nil {
		c.log.WithError(err).Warnf("Sending %s failed", msg["Action"])
		fn(nil, fmt.Errorf("radio: sending %s: %w", msg["Action"], err))
	}
}

// Connected reports whether the daemon link is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close stops reconnecting and closes the link.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.connected = false
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
