package syssched

// Awakener to wake up an execution.
type Awakener interface {
	// Awake wakes up an execution.
	//
	// Remarks:
	//   - Should not block.
	Awake()
}

// FuncAwakener is a function type that implements the Awakener interface.
type FuncAwakener func()

// Awake calls the function itself to fulfill the Awakener interface.
func (a FuncAwakener) Awake() {
	a()
}
