package u

// Must panics on error. Use for errors that can only happen
// because of a bug e.g. binding a flag that doesn't exist
func Must(err error) {
	if err != nil {
		panic(err)
	}
}
