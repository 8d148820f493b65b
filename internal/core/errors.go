package core

import "errors"

var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrModelNotFound = errors.New("model not found")
	ErrInference     = errors.New("inference failed")
	ErrPostprocess   = errors.New("postprocessing failed")
)
