/*
Package irc implements the IRC wire format: parsing raw lines into
Message values and marshaling Message values back into lines suitable
for writing to a connection.

Message is the focus of the package. It satisfies encoding.TextMarshaler
and encoding.TextUnmarshaler, so a line read from a connection can be
decoded with:

	m := &irc.Message{}
	err := m.UnmarshalText(line)

and a message built with one of the command constructors (Msg, Join,
Nick, ...) or NewMessage can be encoded back to wire format with
MarshalText.

This package has no knowledge of connections, dispatch, or state; it
only knows how to read and write the grammar described by RFC 1459 and
RFC 2812, plus CTCP framing (SplitCTCP).
*/
package irc
