package syssched

// Scheduler runs tasks at their declared cadence.
type Scheduler interface {
	// Schedule registers the task to be run periodically.
	//
	// Parameters:
	//   - name - human readable task name, used for logging.
	//   - task to run.
	//   - params - how often and under which policy the task is run.
	//
	// Returns the awakener to run the task out of its cadence.
	Schedule(name string, task Task, params AsyncTaskRunnerParams) Awakener
}
