//go:build !linux
// +build !linux

package socket

import "fmt"

// Socket is only available on Linux.
type Socket struct{}

func NewSocket(id int) (*Socket, error) {
	return nil, fmt.Errorf("hci socket requires linux")
}

func (s *Socket) Read(p []byte) (int, error)  { return 0, fmt.Errorf("hci socket requires linux") }
func (s *Socket) Write(p []byte) (int, error) { return 0, fmt.Errorf("hci socket requires linux") }
func (s *Socket) Close() error                { return nil }
