//go:build !linux

package ble

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

var errUnsupported = errors.New("ble: not supported on this platform (requires Linux)")

// BlueZStack is not available on non-Linux platforms.
type BlueZStack struct{}

// NewBlueZStack returns a stack whose Init always fails.
func NewBlueZStack(adapterID string, log logrus.FieldLogger) *BlueZStack {
	return &BlueZStack{}
}

// HCIStack is not available on non-Linux platforms.
type HCIStack struct{}

// NewHCIStack returns a stack whose Init always fails.
func NewHCIStack(deviceID int, interval time.Duration, log logrus.FieldLogger) *HCIStack {
	return &HCIStack{}
}

func (s *BlueZStack) Init(done func(error))                { go done(errUnsupported) }
func (s *BlueZStack) SetConnectHandler(func(bool))         {}
func (s *BlueZStack) AddService(Service) ([]Handle, error) { return nil, errUnsupported }
func (s *BlueZStack) StartAdvertising(Advertisement) error { return errUnsupported }
func (s *BlueZStack) UpdateValue(Handle, []byte) error     { return errUnsupported }
func (s *HCIStack) Init(done func(error))                  { go done(errUnsupported) }
func (s *HCIStack) SetConnectHandler(func(bool))           {}
func (s *HCIStack) AddService(Service) ([]Handle, error)   { return nil, errUnsupported }
func (s *HCIStack) StartAdvertising(Advertisement) error   { return errUnsupported }
func (s *HCIStack) UpdateValue(Handle, []byte) error       { return errUnsupported }
