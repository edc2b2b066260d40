// Package autosave 实现了章节编辑的自动保存同步引擎。
//
// 编辑器每次内容变化都会产生一个不可变的快照 (Snapshot)。引擎把快照交给
// DirtyTracker 记录，由 Debouncer 在静默期结束后合并成一次保存，通过
// Gateway 写入持久化存储，并由 Reporter 对外暴露 saved / saving / unsaved 状态。
//
// 同一文档同一时间最多只有一次保存在进行中；写入的永远是派发时已知的最新快照。
package autosave
