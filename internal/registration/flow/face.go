package flow

import (
	"onboarding/internal/registration/models"
	"onboarding/pkg/platform/clock"
)

// faceScan is the scheduled work of one visit to FaceVerification. Its
// identity is what callbacks check against, so a timer that fires after the
// visit ended finds a different (or no) task and does nothing.
type faceScan struct {
	timer clock.Timer
}

// FaceStatus returns the verification status of the current visit. It is
// empty outside FaceVerification.
func (c *Controller) FaceStatus() models.FaceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.face
}

func (c *Controller) startScanLocked() {
	task := &faceScan{}
	c.scan = task
	c.face = models.FaceStatusScanning
	task.timer = c.clock.AfterFunc(c.scanDelay, func() { c.onScanFinished(task) })
}

func (c *Controller) cancelScanLocked() {
	if c.scan != nil {
		if c.scan.timer != nil {
			c.scan.timer.Stop()
		}
		c.scan = nil
	}
	c.face = models.FaceStatusIdle
}

func (c *Controller) onScanFinished(task *faceScan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.scan != task {
		return
	}
	c.face = models.FaceStatusSuccess
	task.timer = c.clock.AfterFunc(c.settleDelay, func() { c.onScanSettled(task) })
}

func (c *Controller) onScanSettled(task *faceScan) {
	c.mu.Lock()
	if c.closed || c.scan != task {
		c.mu.Unlock()
		return
	}
	c.moveLocked(models.StepContractSigned, CauseAuto)
	c.unlockAndNotify()
}
