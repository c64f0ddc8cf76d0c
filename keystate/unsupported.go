//go:build !linux && !darwin && !windows

package keystate

import (
	"errors"

	"snapsight/combo"
)

var errUnsupported = errors.New("global key state is not supported on this platform")

func New(_ combo.Spec) (Source, error) { return nil, errUnsupported }

func Diagnose() (string, error) { return "", errUnsupported }

func PermissionHint() string { return "" }
