// Package board renders plant state for operators.
//
// RenderStatus prints orders, stages, equipment and stock as tables for
// `millrun status`. Model is a bubbletea program for `millrun board` that
// polls the store and shows a live stage and equipment view.
package board
