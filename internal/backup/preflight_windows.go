//go:build windows

package backup

func preflightDest(dir string) error {
	_ = dir
	return nil
}
