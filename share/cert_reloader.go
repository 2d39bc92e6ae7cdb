package wsshare

import (
	"crypto/tls"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wstnet"
)

// CertReloader serves a certificate pair from disk and reloads it when
// either file changes. A pair that fails to load is logged and the previous
// certificate stays in use.
type CertReloader struct {
	asyncobj.Helper
	certFile string
	keyFile  string
	watcher  *fsnotify.Watcher

	certLock   sync.RWMutex
	cert       *tls.Certificate
	generation int
}

// NewCertReloader loads the pair and starts watching the directories that
// hold them. Directories are watched, not the files, so that editors and
// tools that replace a file by renaming over it are noticed.
func NewCertReloader(lg logger.Logger, certFile, keyFile string) (*CertReloader, error) {
	r := &CertReloader{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
	}
	r.InitHelper(lg, r)
	if err := r.Reload(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, r.Errorf("unable to watch certificate files: %s", err)
	}
	dirs := map[string]bool{filepath.Dir(r.certFile): true, filepath.Dir(r.keyFile): true}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, r.Errorf("unable to watch %s: %s", dir, err)
		}
	}
	r.watcher = watcher
	r.SetIsActivated()
	r.GetShutdownWG().Add(1)
	go r.watch()
	return r, nil
}

func (r *CertReloader) String() string {
	return "cert reloader " + r.certFile
}

// Reload reads the pair from disk now
func (r *CertReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return r.Errorf("unable to load certificate %s: %s", r.certFile, err)
	}
	r.certLock.Lock()
	r.cert = &cert
	r.generation++
	gen := r.generation
	r.certLock.Unlock()
	r.ILogf("Loaded certificate %s (generation %d), fingerprint %s", r.certFile, gen, wstnet.FingerprintCertificate(cert))
	return nil
}

// Generation counts successful loads
func (r *CertReloader) Generation() int {
	r.certLock.RLock()
	defer r.certLock.RUnlock()
	return r.generation
}

// GetCertificate is a tls.Config GetCertificate hook
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.certLock.RLock()
	defer r.certLock.RUnlock()
	return r.cert, nil
}

func (r *CertReloader) watch() {
	defer r.GetShutdownWG().Done()
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Clean(ev.Name)
			if name != r.certFile && name != r.keyFile {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.DLogf("%s changed (%s)", name, ev.Op)
			if err := r.Reload(); err != nil {
				// the other half of the pair may not be written yet
				r.DLogf("reload deferred: %s", err)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.WLogf("certificate watch error: %s", err)
		}
	}
}

// HandleOnceShutdown stops watching
func (r *CertReloader) HandleOnceShutdown(completionErr error) error {
	if err := r.watcher.Close(); err != nil && completionErr == nil {
		completionErr = err
	}
	return completionErr
}
