// Package main exposes the engine over a C ABI for the host UI.
// Build with -buildmode=c-shared (or c-archive) to produce the
// library the foreign side links against.
//
// Conventions: integer status codes (0 success, negative failures),
// opaque handles for engine objects, and heap-allocated C strings the
// caller releases through free_string.
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	const char *device_id;
	const char *device_name;
	const char *platform;
	const char *version;
} cecdesk_device_info;
*/
import "C"

import (
	"context"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"

	"github.com/pion/logging"

	"github.com/cecdesk/core/pkg/access"
	"github.com/cecdesk/core/pkg/engine"
)

// C-compatible status codes.
const (
	ffiSuccess          = C.int(0)
	ffiInvalidParam     = C.int(-1)
	ffiNotInitialized   = C.int(-2)
	ffiConnectionFailed = C.int(-3)
	ffiUnknown          = C.int(-99)
)

var (
	loggerMu      sync.Mutex
	loggerFactory = logging.NewDefaultLoggerFactory()
)

// startTimeout bounds engine_start from the FFI side.
const startTimeout = 30 * time.Second

//export cecdesk_engine_create
func cecdesk_engine_create(serverURL *C.char) C.uintptr_t {
	if serverURL == nil {
		return 0
	}

	loggerMu.Lock()
	factory := loggerFactory
	loggerMu.Unlock()

	node, err := engine.NewNode(engine.Config{
		SignalingURL:  C.GoString(serverURL),
		LoggerFactory: factory,
	})
	if err != nil {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(node))
}

//export cecdesk_engine_destroy
func cecdesk_engine_destroy(handle C.uintptr_t) {
	if handle == 0 {
		return
	}
	h := cgo.Handle(handle)
	if node, ok := h.Value().(*engine.Node); ok {
		node.Stop()
	}
	h.Delete()
}

func nodeFromHandle(handle C.uintptr_t) *engine.Node {
	if handle == 0 {
		return nil
	}
	node, _ := cgo.Handle(handle).Value().(*engine.Node)
	return node
}

//export cecdesk_engine_start
func cecdesk_engine_start(handle C.uintptr_t) C.int {
	node := nodeFromHandle(handle)
	if node == nil {
		return ffiInvalidParam
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := node.Start(ctx); err != nil {
		return ffiConnectionFailed
	}
	return ffiSuccess
}

//export cecdesk_engine_stop
func cecdesk_engine_stop(handle C.uintptr_t) C.int {
	node := nodeFromHandle(handle)
	if node == nil {
		return ffiInvalidParam
	}
	node.Stop()
	return ffiSuccess
}

//export cecdesk_engine_device_id
func cecdesk_engine_device_id(handle C.uintptr_t, out **C.char) C.int {
	if out == nil {
		return ffiInvalidParam
	}
	node := nodeFromHandle(handle)
	if node == nil {
		return ffiInvalidParam
	}
	id := node.DeviceID()
	if id == "" {
		return ffiNotInitialized
	}
	*out = C.CString(id)
	return ffiSuccess
}

//export cecdesk_engine_connect_device
func cecdesk_engine_connect_device(handle C.uintptr_t, remoteID *C.char, sessionIDOut **C.char) C.int {
	if remoteID == nil || sessionIDOut == nil {
		return ffiInvalidParam
	}
	node := nodeFromHandle(handle)
	if node == nil {
		return ffiInvalidParam
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	sessionID, err := node.ConnectToDevice(ctx, C.GoString(remoteID),
		[]access.Permission{access.PermissionViewScreen, access.PermissionInputControl})
	if err != nil {
		return ffiConnectionFailed
	}
	*sessionIDOut = C.CString(sessionID)
	return ffiSuccess
}

//export cecdesk_engine_end_session
func cecdesk_engine_end_session(handle C.uintptr_t, sessionID *C.char) C.int {
	if sessionID == nil {
		return ffiInvalidParam
	}
	node := nodeFromHandle(handle)
	if node == nil {
		return ffiInvalidParam
	}
	if err := node.EndSession(C.GoString(sessionID), "host requested"); err != nil {
		return ffiUnknown
	}
	return ffiSuccess
}

//export cecdesk_engine_generate_access_code
func cecdesk_engine_generate_access_code(handle C.uintptr_t, codeOut **C.char) C.int {
	if codeOut == nil {
		return ffiInvalidParam
	}
	node := nodeFromHandle(handle)
	if node == nil {
		return ffiInvalidParam
	}
	code, err := node.Access().GenerateAccessCode([]access.Permission{access.PermissionFullControl})
	if err != nil {
		return ffiNotInitialized
	}
	*codeOut = C.CString(code.Code)
	return ffiSuccess
}

//export cecdesk_register_device_info
func cecdesk_register_device_info(handle C.uintptr_t, info *C.cecdesk_device_info) C.int {
	if info == nil || info.device_name == nil || info.platform == nil || info.version == nil {
		return ffiInvalidParam
	}
	node := nodeFromHandle(handle)
	if node == nil {
		return ffiInvalidParam
	}
	if _, err := node.Access().RegisterDevice(
		C.GoString(info.device_name),
		C.GoString(info.platform),
		C.GoString(info.version)); err != nil {
		return ffiUnknown
	}
	return ffiSuccess
}

//export free_string
func free_string(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

//export init_logging
func init_logging(level C.int) C.int {
	factory := logging.NewDefaultLoggerFactory()
	switch level {
	case 0:
		factory.DefaultLogLevel = logging.LogLevelError
	case 1:
		factory.DefaultLogLevel = logging.LogLevelWarn
	case 2:
		factory.DefaultLogLevel = logging.LogLevelInfo
	case 3:
		factory.DefaultLogLevel = logging.LogLevelDebug
	default:
		factory.DefaultLogLevel = logging.LogLevelTrace
	}

	loggerMu.Lock()
	loggerFactory = factory
	loggerMu.Unlock()
	return ffiSuccess
}

func main() {}
