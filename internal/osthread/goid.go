package osthread

// parseGoroutineID extracts the id from the first line of runtime.Stack output,
// "goroutine 123 [running]:". It returns 0 when the format is not recognised.
func parseGoroutineID(buf []byte) uint64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var id uint64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
