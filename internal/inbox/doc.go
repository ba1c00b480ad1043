// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inbox watches a directory and hands each new document to a handler.
//
// A file is handed over once it has been quiet for the debounce period, so a
// document still being copied is not uploaded half-written. Hidden files and
// editor or download temporaries are ignored. The directory is not watched
// recursively.
//
// # Key Types
//
//   - Watcher: fsnotify-backed directory watcher
//   - Handler: Callback receiving the path of a settled file
//
// # Usage
//
//	w, err := inbox.New(inbox.Config{Dir: dir, Debounce: time.Second},
//	    func(ctx context.Context, path string) {
//	        f, err := upload.FileFromPath(path)
//	        if err == nil {
//	            engine.Submit(ctx, f)
//	        }
//	    })
//	if err != nil {
//	    return err
//	}
//	return w.Run(ctx)
package inbox
