package driver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/telemotion/armrec/internal/log"
	"github.com/telemotion/armrec/pkg/motion"
)

const (
	dialTimeout  = 5 * time.Second
	replyTimeout = 2 * time.Second

	// robotModeRunning is the controller's "executing a command"
	// state in the RobotMode() reply.
	robotModeRunning = 7
)

// Dobot talks the Dobot TCP text protocol: a dashboard port for
// control/status queries and a move port for motion commands. Each
// request is a single "Name(args)" line answered with
// "code,{payload},Name(args);".
type Dobot struct {
	addr          string
	dashboardPort int
	movePort      int
	dof           int

	mu        sync.Mutex
	dashboard *textConn
	move      *textConn
}

// NewDobot creates a driver for the arm at addr. dof bounds how many
// values are read out of pose and angle replies.
func NewDobot(addr string, dashboardPort, movePort, dof int) *Dobot {
	return &Dobot{
		addr:          addr,
		dashboardPort: dashboardPort,
		movePort:      movePort,
		dof:           dof,
	}
}

// Connect dials both ports and enables the arm.
func (d *Dobot) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dash, err := dialText(ctx, d.addr, d.dashboardPort)
	if err != nil {
		return fmt.Errorf("dashboard port: %w", err)
	}
	move, err := dialText(ctx, d.addr, d.movePort)
	if err != nil {
		dash.close()
		return fmt.Errorf("move port: %w", err)
	}
	d.dashboard = dash
	d.move = move

	// Clear any latched fault from a previous session, then enable.
	if _, err := d.dashboard.request("ClearError()"); err != nil {
		d.closeLocked()
		return fmt.Errorf("clear error: %w", err)
	}
	if _, err := d.dashboard.request("EnableRobot()"); err != nil {
		d.closeLocked()
		return fmt.Errorf("enable robot: %w", err)
	}
	log.Info("robot connected", "addr", d.addr)
	return nil
}

// Disconnect closes both connections.
func (d *Dobot) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *Dobot) closeLocked() {
	if d.dashboard != nil {
		d.dashboard.close()
		d.dashboard = nil
	}
	if d.move != nil {
		d.move.close()
		d.move = nil
	}
}

// SendMotion maps the command onto the arm's four move primitives.
// After issuing it checks the controller's error register; a latched
// error means the target was out of reach, so the fault is cleared
// and the command reported rejected.
func (d *Dobot) SendMotion(cmd motion.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.move == nil {
		return ErrDisconnected
	}

	var name string
	switch {
	case cmd.Kind == motion.AbsolutePoint && cmd.Motion == motion.Joint:
		name = "MovJ"
	case cmd.Kind == motion.AbsolutePoint && cmd.Motion == motion.Linear:
		name = "MovL"
	case cmd.Kind == motion.RelativeStep && cmd.Motion == motion.Joint:
		name = "RelMovJ"
	default:
		name = "RelMovL"
	}

	if _, err := d.move.request(formatMove(name, cmd.Values)); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	if reason := d.errorReasonLocked(); reason != "" {
		if _, err := d.dashboard.request("ClearError()"); err == nil {
			d.dashboard.request("EnableRobot()")
		}
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	return nil
}

// ReadPose queries the cartesian pose.
func (d *Dobot) ReadPose() ([]float64, error) {
	return d.readVector("GetPose()")
}

// ReadAngles queries the joint angles.
func (d *Dobot) ReadAngles() ([]float64, error) {
	return d.readVector("GetAngle()")
}

func (d *Dobot) readVector(query string) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dashboard == nil {
		return nil, ErrDisconnected
	}
	reply, err := d.dashboard.request(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	values, err := parseVector(reply)
	if err != nil {
		return nil, err
	}
	if len(values) < d.dof {
		return nil, fmt.Errorf("short %s reply: %d values", query, len(values))
	}
	return values[:d.dof], nil
}

// IsBusy reports whether the controller is executing a command.
func (d *Dobot) IsBusy() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dashboard == nil {
		return false, ErrDisconnected
	}
	reply, err := d.dashboard.request("RobotMode()")
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	values, err := parseVector(reply)
	if err != nil || len(values) == 0 {
		return false, fmt.Errorf("bad RobotMode reply %q", reply)
	}
	return int(values[0]) == robotModeRunning, nil
}

// ClearError clears a latched fault and re-enables the arm.
func (d *Dobot) ClearError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dashboard == nil {
		return ErrDisconnected
	}
	if _, err := d.dashboard.request("ClearError()"); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	_, err := d.dashboard.request("EnableRobot()")
	return err
}

// errorReasonLocked returns a description of the controller's first
// active error, or "" when none is latched.
func (d *Dobot) errorReasonLocked() string {
	reply, err := d.dashboard.request("GetErrorID()")
	if err != nil {
		return ""
	}
	values, err := parseVector(reply)
	if err != nil {
		return ""
	}
	for _, v := range values {
		if v > 0 {
			return fmt.Sprintf("controller error %d", int(v))
		}
	}
	return ""
}

// formatMove renders "Name(v1,v2,...)".
func formatMove(name string, values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

// parseVector extracts the comma-separated floats between the braces
// of a reply like "0,{1.0,2.0},GetPose();".
func parseVector(reply string) ([]float64, error) {
	open := strings.IndexByte(reply, '{')
	close := strings.IndexByte(reply, '}')
	if open < 0 || close < open {
		return nil, fmt.Errorf("no payload in reply %q", reply)
	}
	body := reply[open+1 : close]
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	fields := strings.Split(body, ",")
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q in reply %q", f, reply)
		}
		values = append(values, v)
	}
	return values, nil
}

// textConn is one line-oriented protocol connection.
type textConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialText(ctx context.Context, addr string, port int) (*textConn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return &textConn{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// request writes one command line and reads the ';'-terminated reply.
func (c *textConn) request(cmd string) (string, error) {
	if err := c.conn.SetDeadline(time.Now().Add(replyTimeout)); err != nil {
		return "", err
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", err
	}
	reply, err := c.reader.ReadString(';')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (c *textConn) close() {
	c.conn.Close()
}

var _ Driver = (*Dobot)(nil)
