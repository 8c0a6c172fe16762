package eventtype

import (
	"fmt"
	"sync"

	"github.com/snowdag/snowdag/util"
)

type (
	EventCode int

	eventType struct {
		name         string
		dataTypeName string
		makeHandler  func(any) (func(any), error)
	}
)

var (
	eventTypesMutex sync.RWMutex
	eventTypes      = make([]eventType, 0)
)

// RegisterNew registers new event type globally. Returns newly registered EventCode
func RegisterNew[T any](name string) EventCode {
	eventTypesMutex.Lock()
	defer eventTypesMutex.Unlock()

	var nullT T

	ret := EventCode(len(eventTypes))
	eventTypes = append(eventTypes, eventType{
		name:         name,
		dataTypeName: fmt.Sprintf("%T", nullT),
		makeHandler: func(fun any) (func(any), error) {
			handler, ok := fun.(func(T))
			if !ok {
				return nil, fmt.Errorf("wrong event handler type for event %s(%d): got %T", name, ret, fun)
			}
			return func(arg any) {
				argConv, ok := arg.(T)
				util.Assertf(ok, "wrong argument type of the event: expected '%T', got: '%T'", nullT, arg)
				handler(argConv)
			}, nil
		},
	})
	return ret
}

func MakeHandler(code EventCode, fun any) (func(any), error) {
	eventTypesMutex.RLock()
	defer eventTypesMutex.RUnlock()

	if int(code) >= len(eventTypes) {
		return nil, fmt.Errorf("wrong event code %d", code)
	}
	return eventTypes[code].makeHandler(fun)
}

func (c EventCode) String() string {
	eventTypesMutex.RLock()
	defer eventTypesMutex.RUnlock()

	if int(c) >= len(eventTypes) {
		return fmt.Sprintf("wrong(%d)", c)
	}
	return fmt.Sprintf("%s(%d)", eventTypes[c].name, c)
}
