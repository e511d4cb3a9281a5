// Package threading assigns incoming emails to smart threads.
//
// An email joins the thread of the most similar earlier email of the same
// user when their subject similarity exceeds the threshold; otherwise a new
// "smart-xxxxxxxx" thread is started. Threads only grow: an assignment is
// never revised when later emails arrive.
//
// The assigner scans the whole history on every call. Callers with large
// histories should pass a pre-filtered slice.
package threading
