// Package viz draws ion point clouds in the terminal.
//
// Positions are projected orthographically through a [Camera] built from a
// [pointcloud.CameraPreset], fitted to the view by [Layout] and plotted on a
// Braille [Canvas] whose cells carry lipgloss colours. [Terminal] implements
// [pointcloud.Renderer]. The lipgloss styles here are shared with the
// progress view and CLI output.
package viz
