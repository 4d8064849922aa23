package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// EngineMock plays the AR engine side of the connection
type EngineMock struct {
	initOnce sync.Once

	ln            net.Listener
	newConnection chan net.Conn

	muConn sync.Mutex
	conn   net.Conn
	writer *bufio.Writer

	notifyChan chan []byte
}

func (e *EngineMock) init() {
	e.newConnection = make(chan net.Conn, 1)
	e.notifyChan = make(chan []byte, 100)
}

// Notify returns the raw lines sent by the gateway
func (e *EngineMock) Notify() <-chan []byte {
	e.initOnce.Do(e.init)
	return e.notifyChan
}

func (e *EngineMock) Start() error {
	e.initOnce.Do(e.init)
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return fmt.Errorf("unable to listen on port: %v", err)
	}
	e.ln = ln

	go func() {
		for {
			conn, err := e.ln.Accept()
			if err != nil {
				zap.S().Debugf("connection close: %v", err)
				break
			}
			go e.handleConnection(conn)
			e.newConnection <- conn
		}
	}()
	return nil
}

func (e *EngineMock) Addr() string {
	return e.ln.Addr().String()
}

func (e *EngineMock) WaitConnection() {
	e.muConn.Lock()
	defer e.muConn.Unlock()
	if e.conn != nil {
		return
	}
	conn := <-e.newConnection
	e.conn = conn
	e.writer = bufio.NewWriter(conn)
}

func (e *EngineMock) EmitMsg(msg interface{}) error {
	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("unable to marshal msg: %v", err)
	}
	return e.EmitRaw(string(content))
}

func (e *EngineMock) EmitRaw(line string) error {
	e.muConn.Lock()
	defer e.muConn.Unlock()
	_, err := e.writer.WriteString(line + "\n")
	if err != nil {
		return err
	}
	return e.writer.Flush()
}

// Disconnect closes the engine side of the current connection
func (e *EngineMock) Disconnect() error {
	e.muConn.Lock()
	defer e.muConn.Unlock()
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

func (e *EngineMock) handleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		rawMsg, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				zap.S().Debug("connection closed")
			}
			return
		}
		e.notifyChan <- rawMsg
	}
}

func (e *EngineMock) Close() error {
	err := e.ln.Close()
	if err != nil {
		return fmt.Errorf("unable to close mock server: %v", err)
	}
	return e.Disconnect()
}
