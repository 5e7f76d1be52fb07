package n64core

// kalman1D is a scalar Kalman filter: the minimal recursive estimator that
// fits a noisy, evolving scalar. Video uses two independent instances — one
// reactive, tracking delta-time sample-to-sample, one slower, smoothing the
// displayed FPS number.
type kalman1D struct {
	processNoise     float64
	measurementNoise float64
	errorCovariance  float64
	estimate         float64
	initialized      bool
}

// newKalman1D constructs a filter. processNoise controls how quickly the
// estimate can track real change; measurementNoise controls how much a
// single noisy sample is trusted.
func newKalman1D(processNoise, measurementNoise float64) *kalman1D {
	return &kalman1D{
		processNoise:     processNoise,
		measurementNoise: measurementNoise,
		errorCovariance:  1.0,
	}
}

// Update folds one new measurement in and returns the filtered estimate.
// The first call seeds the filter with the raw measurement rather than
// filtering against an arbitrary zero state.
func (k *kalman1D) Update(measurement float64) float64 {
	if !k.initialized {
		k.estimate = measurement
		k.initialized = true
		return k.estimate
	}

	k.errorCovariance += k.processNoise
	gain := k.errorCovariance / (k.errorCovariance + k.measurementNoise)
	k.estimate += gain * (measurement - k.estimate)
	k.errorCovariance *= 1 - gain
	return k.estimate
}

// Value returns the current estimate without folding in a new sample.
func (k *kalman1D) Value() float64 { return k.estimate }
