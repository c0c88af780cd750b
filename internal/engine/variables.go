package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/storage"
	"github.com/fleetd/fleet-server/internal/vpn"
	"github.com/fleetd/fleet-server/pkg/crypto"
)

// maskedValue replaces secret material the caller asked to withhold
const maskedValue = "********"

// Variable is one resolved name/value pair
type Variable struct {
	Name  string
	Value string
}

// VariableSet is an ordered name/value collection. Setting an existing name
// overwrites its value but keeps its original position.
type VariableSet struct {
	order  []string
	values map[string]string
}

// NewVariableSet creates an empty set
func NewVariableSet() *VariableSet {
	return &VariableSet{values: make(map[string]string)}
}

// Set adds or overwrites a variable
func (s *VariableSet) Set(name, value string) {
	if _, ok := s.values[name]; !ok {
		s.order = append(s.order, name)
	}
	s.values[name] = value
}

// Get returns a variable value
func (s *VariableSet) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Map returns the values as a plain map for template rendering
func (s *VariableSet) Map() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// All returns every variable in insertion order
func (s *VariableSet) All() []Variable {
	out := make([]Variable, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Variable{Name: name, Value: s.values[name]})
	}
	return out
}

// Ordered applies an explicit name order: only listed names survive, in list
// order. Indexed families (a listed name for which only <name>0, <name>1, ...
// exist) are expanded across 0..subnetSize inclusive. Names the set does not
// hold are skipped.
func (s *VariableSet) Ordered(order []string, subnetSize int) []Variable {
	var out []Variable
	for _, name := range order {
		if v, ok := s.values[name]; ok {
			out = append(out, Variable{Name: name, Value: v})
			continue
		}
		if _, ok := s.values[name+"0"]; !ok {
			continue
		}
		for i := 0; i <= subnetSize; i++ {
			indexed := name + strconv.Itoa(i)
			if v, ok := s.values[indexed]; ok {
				out = append(out, Variable{Name: indexed, Value: v})
			}
		}
	}
	return out
}

// ResolveOptions tunes one resolution pass
type ResolveOptions struct {
	// Custom variables the protocol contributes, applied after secrets and
	// before device-defined values.
	Custom []Variable

	// MaskSecrets withholds decrypted secret and certificate material,
	// substituting placeholder strings.
	MaskSecrets bool
}

// VariableResolver builds the name/value set exposed to config rendering.
// Later sources override earlier ones on name collision: predefined, then
// secret-derived, then protocol custom, then device-defined.
type VariableResolver struct {
	store  Store
	crypto *crypto.Service
	vpn    vpn.AddressManager
}

// NewVariableResolver creates a variable resolver
func NewVariableResolver(store Store, cryptoSvc *crypto.Service, addr vpn.AddressManager) *VariableResolver {
	return &VariableResolver{store: store, crypto: cryptoSvc, vpn: addr}
}

// Resolve assembles the full variable set for the in-flight request
func (r *VariableResolver) Resolve(ctx context.Context, rctx *RequestContext, opts ResolveOptions) (*VariableSet, error) {
	set := NewVariableSet()

	r.addPredefined(set, rctx)
	if rctx.DeviceType.HasCertificates {
		if err := r.addCertificateVariables(ctx, set, rctx, opts.MaskSecrets); err != nil {
			return nil, err
		}
	}
	if err := r.addSecretVariables(ctx, set, rctx, opts.MaskSecrets); err != nil {
		return nil, err
	}

	for _, v := range opts.Custom {
		set.Set(v.Name, v.Value)
	}

	for name, value := range rctx.Device.DeviceVariables {
		set.Set(name, fmt.Sprintf("%v", value))
	}
	if rctx.Template != nil {
		for name, value := range rctx.Template.Variables {
			if _, ok := set.Get(name); !ok {
				set.Set(name, fmt.Sprintf("%v", value))
			}
		}
	}

	return set, nil
}

// predefined registers the fixed variable names. The registry is explicit so
// every exposed name is greppable; nothing is derived from field names at
// runtime.
func (r *VariableResolver) addPredefined(set *VariableSet, rctx *RequestContext) {
	device := rctx.Device
	dt := rctx.DeviceType

	set.Set("name", device.Name)
	set.Set("uuid", device.UUID)
	if device.SerialNumber != nil {
		set.Set("serial", *device.SerialNumber)
	}
	if device.Model != nil {
		set.Set("model", *device.Model)
	}

	if dt.HasGSM {
		if device.IMSI != nil {
			set.Set("imsi", *device.IMSI)
		}
		if device.IMEI != nil {
			set.Set("imei", *device.IMEI)
		}
	}

	if device.VPNIP != "" {
		set.Set("vpnIp", device.VPNIP)
	}

	if dt.HasEndpointDevices {
		r.addEndpointVariables(set, rctx)
	}
}

// addEndpointVariables exposes indexed virtual/physical IPs. Index 0 is the
// device itself; endpoint devices occupy their assigned indexes above it.
func (r *VariableResolver) addEndpointVariables(set *VariableSet, rctx *RequestContext) {
	device := rctx.Device

	set.Set("vip0", device.VPNIP)
	set.Set("pip0", device.LocalIP)

	if rctx.Template == nil {
		return
	}
	for _, ep := range rctx.Template.EndpointDevices {
		if ep.Index <= 0 {
			continue
		}
		vip := ep.VirtualIP
		if vip == "" && r.vpn != nil && device.VPNIP != "" {
			derived, err := r.vpn.EndpointIP(device.VPNIP, ep.Index)
			if err == nil {
				vip = derived
			}
		}
		set.Set("vip"+strconv.Itoa(ep.Index), vip)
		set.Set("pip"+strconv.Itoa(ep.Index), ep.PhysicalIP)
	}
}

// addCertificateVariables exposes certificate material under each available
// assignment's variable name.
func (r *VariableResolver) addCertificateVariables(ctx context.Context, set *VariableSet, rctx *RequestContext, mask bool) error {
	assignments, err := r.store.ListDeviceTypeCertificateTypes(ctx, rctx.DeviceType.ID)
	if err != nil {
		return fmt.Errorf("list certificate types: %w", err)
	}

	for _, assignment := range assignments {
		if !assignment.Available || assignment.VariableName == "" {
			continue
		}

		cert, err := r.store.GetDeviceCertificateByType(ctx, rctx.Device.ID, assignment.CertificateTypeID)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return fmt.Errorf("load certificate: %w", err)
		}
		if !cert.Generated() {
			continue
		}

		if mask {
			set.Set(assignment.VariableName, maskedValue)
			set.Set(assignment.VariableName+"_key", maskedValue)
			set.Set(assignment.VariableName+"_ca", maskedValue)
			continue
		}

		certPEM, err := r.crypto.DecryptBytes(cert.EncryptedCertificate)
		if err != nil {
			return fmt.Errorf("decrypt certificate: %w", err)
		}
		keyPEM, err := r.crypto.DecryptBytes(cert.EncryptedPrivateKey)
		if err != nil {
			return fmt.Errorf("decrypt private key: %w", err)
		}

		set.Set(assignment.VariableName, string(certPEM))
		set.Set(assignment.VariableName+"_key", string(keyPEM))
		if rootCA, err := crypto.RootCAFromChain(certPEM); err == nil {
			set.Set(assignment.VariableName+"_ca", string(rootCA))
		}
	}
	return nil
}

// addSecretVariables exposes each variable-marked secret in six forms: the
// plain value, base64, and four salted digests. The salt is generated fresh
// per resolution so rendered configs never reuse digest inputs.
func (r *VariableResolver) addSecretVariables(ctx context.Context, set *VariableSet, rctx *RequestContext, mask bool) error {
	policies, err := r.store.ListDeviceTypeSecrets(ctx, rctx.DeviceType.ID)
	if err != nil {
		return fmt.Errorf("list secret policies: %w", err)
	}

	byID := make(map[uuid.UUID]*models.DeviceTypeSecret, len(policies))
	for _, p := range policies {
		if p.UseAsVariable {
			byID[p.ID] = p
		}
	}
	if len(byID) == 0 {
		return nil
	}

	secrets, err := r.store.ListDeviceSecrets(ctx, rctx.Device.ID)
	if err != nil {
		return fmt.Errorf("list device secrets: %w", err)
	}

	for _, secret := range secrets {
		policy, ok := byID[secret.DeviceTypeSecretID]
		if !ok {
			continue
		}

		if mask {
			for _, suffix := range []string{"", "_base64", "_md5", "_sha1", "_sha256", "_sha512"} {
				set.Set(policy.Name+suffix, maskedValue)
			}
			continue
		}

		value, err := r.crypto.DecryptString(secret.EncryptedValue)
		if err != nil {
			return fmt.Errorf("decrypt secret %s: %w", policy.Name, err)
		}

		salt, err := crypto.GenerateSalt(8)
		if err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}

		set.Set(policy.Name, value)
		set.Set(policy.Name+"_base64", base64.StdEncoding.EncodeToString([]byte(value)))
		set.Set(policy.Name+"_md5", salt+":"+crypto.SaltedMD5(salt, value))
		set.Set(policy.Name+"_sha1", salt+":"+crypto.SaltedSHA1(salt, value))
		set.Set(policy.Name+"_sha256", salt+":"+crypto.SaltedSHA256(salt, value))
		set.Set(policy.Name+"_sha512", salt+":"+crypto.SaltedSHA512(salt, value))
	}
	return nil
}
