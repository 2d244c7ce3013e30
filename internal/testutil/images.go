package testutil

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
)

// JPEG returns bytes that sniff as image/jpeg followed by body.
func JPEG(body string) []byte {
	return append(append([]byte{}, jpegMagic...), body...)
}

// PNG returns bytes that sniff as image/png followed by body.
func PNG(body string) []byte {
	return append(append([]byte{}, pngMagic...), body...)
}
