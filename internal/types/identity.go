package types

import "github.com/google/uuid"

// Identity is the authenticated caller, passed explicitly into every core operation.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Admin  bool      `json:"admin"`
}

// Established reports whether the identity names a real user.
func (id Identity) Established() bool {
	return id.UserID != uuid.Nil
}

// CanAccess reports whether the caller may read or write a record owned by ownerID.
func (id Identity) CanAccess(ownerID uuid.UUID) bool {
	return id.Established() && (id.Admin || id.UserID == ownerID)
}

// ICEServer is one relay/STUN connection hint.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// SignalingDescriptor is handed to a voice client to establish the real-time link.
type SignalingDescriptor struct {
	ChannelURL string      `json:"channel_url"`
	Token      string      `json:"token,omitempty"`
	ICEServers []ICEServer `json:"ice_servers"`
}
