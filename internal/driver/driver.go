package driver

import "github.com/nerrad567/rfidhub/internal/tagcodec"

// MaxTags is the size of the inventory table the reader fills in host mode.
const MaxTags = 100

// Driver allocates reader contexts.
type Driver interface {
	// NewContext allocates one opaque reader context. The caller must call
	// Release exactly once when done with it.
	NewContext() (Context, error)
}

// Context is one allocated native reader context.
//
// Every method except Disconnect, ErrorText and Release returns a status
// code: CodeOK on success or a negative device-native code.
type Context interface {
	// Connect opens the communication link to the reader at busAddr on the
	// numbered port.
	Connect(busAddr uint8, port int) int

	// Disconnect closes the communication link. The context stays allocated
	// and may connect again.
	Disconnect()

	// Inventory fills ids with the identifiers of tags in the antenna field
	// and returns how many were written.
	Inventory(ids *[MaxTags]tagcodec.TagID) (n int, code int)

	// ReadTag reads the payload block of one tag into out.
	ReadTag(id *tagcodec.TagID, out *tagcodec.Payload) int

	// WriteTag writes the payload block in to one tag.
	WriteTag(id *tagcodec.TagID, in *tagcodec.Payload) int

	// ErrorText returns the driver's text for code, or "" if unknown.
	ErrorText(code int) string

	// Release frees the native context. Calls after Release are undefined.
	Release()
}

// PortLister is implemented by drivers that can enumerate the ports readers
// may be attached to.
type PortLister interface {
	Ports() ([]string, error)
}
