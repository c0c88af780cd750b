package engine

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetd/fleet-server/internal/models"
)

// Payload carries the fields a procedure parsed out of a device request
type Payload struct {
	SerialNumber string
	IMSI         string
	IMEI         string
	Model        string
	Name         string

	// Reported firmware version per slot, as sent (not normalized)
	FirmwareVersions models.SlotStrings

	// CurrentConfigs is the configuration the device reports as applied,
	// per slot, used for push deduplication.
	CurrentConfigs [models.SlotCount][]byte

	Rsrp     *int
	Rsrq     *int
	Operator string
	CellID   string

	LocalIP  string
	PublicIP string

	// DiagnosticData is a raw diagnostic payload, accepted as-is
	DiagnosticData []byte

	// CommandAcks lists transaction ids the device acknowledges
	CommandAcks []string

	// Raw keeps everything the device submitted for auditing
	Raw models.Variables
}

// ErrorKind classifies an error response the procedure must shape
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "CONFIGURATION"
	ErrorKindTypeMismatch  ErrorKind = "TYPE_MISMATCH"
	ErrorKindValidation    ErrorKind = "VALIDATION"
	ErrorKindUnknownDevice ErrorKind = "UNKNOWN_DEVICE"
)

// Response is the protocol-shaped reply for one device request
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Header      map[string]string
}

// Write writes the response onto the transport
func (r *Response) Write(w http.ResponseWriter) {
	for k, v := range r.Header {
		w.Header().Set(k, v)
	}
	if r.ContentType != "" {
		w.Header().Set("Content-Type", r.ContentType)
	}
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) > 0 {
		w.Write(r.Body)
	}
}

// RequestContext is the per-request state the lifecycle threads through its
// steps. It is discarded when the request ends.
type RequestContext struct {
	RequestID string

	DeviceType *models.DeviceType
	Device     *models.Device

	// Created is true when this request created the device
	Created bool

	// Template is the resolved template version, nil when none exists
	Template *models.TemplateVersion

	Payload  *Payload
	Response *Response

	// Params holds route parameters from dispatch
	Params map[string]string

	Log *CommRecorder

	// Validation errors collected from the payload, shaped by the procedure
	ValidationErrors []string

	firmwarePushed bool
	configPushed   bool
	rotationRan    bool
}

// NewRequestContext creates a request context for one device request
func NewRequestContext(dt *models.DeviceType, logger zerolog.Logger) *RequestContext {
	requestID := uuid.New().String()
	rctx := &RequestContext{
		RequestID:  requestID,
		DeviceType: dt,
		Payload:    &Payload{},
		Log:        NewCommRecorder(requestID, logger),
	}
	if dt != nil {
		rctx.Log.SetDeviceType(dt.ID)
	}
	return rctx
}

// FirmwarePushed reports whether this request produced a firmware push
func (r *RequestContext) FirmwarePushed() bool { return r.firmwarePushed }

// ConfigPushed reports whether this request produced a config push
func (r *RequestContext) ConfigPushed() bool { return r.configPushed }

// EventPublisher receives persisted communication log entries for fan-out
type EventPublisher interface {
	PublishCommunicationLog(ctx context.Context, entry *models.CommunicationLog)
}
