package protocol

// ProtocolVersion is the wire protocol version printed in version/doctor
// banners and exchanged during the "connect" handshake. Bump whenever a
// method's request/response shape changes incompatibly.
const ProtocolVersion = 1
