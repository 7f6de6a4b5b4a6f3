package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"kanmonconnect/internal/domain"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"
)

const (
	downloadBinding   = "kanmonDownloadFile"
	permissionBinding = "kanmonRequestPermission"

	// resourceVideoCapture is the only device the page may be granted.
	resourceVideoCapture = "videoCapture"
)

const extensionsTemplate = `(function () {
  if (window.__kanmonExtensionsInstalled) { return; }
  Object.defineProperty(window, '__kanmonExtensionsInstalled', { value: true });
  var host = window.ReactNative || {};
  window.ReactNative = host;

  var download = window['{{download}}'];
  if (typeof download === 'function') {
    host.downloadBase64File = function (dataUrl, fileName) {
      download(JSON.stringify({ dataUrl: String(dataUrl), fileName: String(fileName || '') }));
    };
  }

  var ask = window['{{permission}}'];
  var media = navigator.mediaDevices;
  if (typeof ask !== 'function' || !media || !media.getUserMedia) { return; }
  var original = media.getUserMedia.bind(media);
  var pending = {};
  var seq = 0;
  window.__kanmonPermissionResult = function (id, granted) {
    var done = pending[id];
    if (!done) { return; }
    delete pending[id];
    done(granted);
  };
  media.getUserMedia = function (constraints) {
    var resources = [];
    if (constraints && constraints.video) { resources.push('videoCapture'); }
    if (constraints && constraints.audio) { resources.push('audioCapture'); }
    var id = String(++seq);
    return new Promise(function (resolve, reject) {
      pending[id] = function (granted) {
        if (granted) { original(constraints).then(resolve, reject); return; }
        reject(new DOMException('Permission denied', 'NotAllowedError'));
      };
      ask(JSON.stringify({ id: id, resources: resources }));
    });
  };
})();`

// extensionsScript exposes file downloads and routes camera requests to the host.
func extensionsScript() string {
	r := strings.NewReplacer("{{download}}", downloadBinding, "{{permission}}", permissionBinding)
	return r.Replace(extensionsTemplate)
}

func permissionResultScript(id string, granted bool) string {
	return fmt.Sprintf(`window.__kanmonPermissionResult && window.__kanmonPermissionResult(%q, %t);`, id, granted)
}

// handlePermissionRequest parks a getUserMedia request in the registry and
// hands it to the prompter. Anything but the camera is denied outright.
func handlePermissionRequest(ctx context.Context, h *Host, logger *slog.Logger, origin, payload string) {
	id := gjson.Get(payload, "id").String()
	var resources []string
	for _, r := range gjson.Get(payload, "resources").Array() {
		resources = append(resources, r.String())
	}

	answer := func(granted bool) {
		err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			if granted {
				perms := []browser.PermissionType{browser.PermissionTypeVideoCapture}
				if err := browser.GrantPermissions(perms).WithOrigin(origin).Do(ctx); err != nil {
					return err
				}
			}
			return chromedp.Evaluate(permissionResultScript(id, granted), nil).Do(ctx)
		}))
		if err != nil {
			logger.Warn("answer permission request failed", "err", err)
		}
	}

	if id == "" || !slices.Contains(resources, resourceVideoCapture) || h.cfg.Prompter == nil {
		logger.Debug("denying device request", "resources", resources, "origin", origin)
		answer(false)
		return
	}

	tok := h.cfg.Permissions.Register(answer)
	logger.Info("camera permission requested", "origin", origin, "token", tok)
	h.cfg.Prompter.RequestPermission(tok, domain.PermissionRequest{Origin: origin, Resources: resources})
}

// saveDownload writes a file the page handed over as a base64 data URL and
// returns its path. Existing files are never overwritten.
func saveDownload(dir, payload string) (string, error) {
	if !gjson.Valid(payload) {
		return "", errors.New("download: malformed request")
	}
	data, err := decodeDataURL(gjson.Get(payload, "dataUrl").String())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create downloads dir: %w", err)
	}
	path := uniquePath(dir, sanitizeFileName(gjson.Get(payload, "fileName").String()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write download: %w", err)
	}
	return path, nil
}

// decodeDataURL accepts "data:<mime>;base64,<data>" or bare base64.
func decodeDataURL(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, errors.New("download: data URL is not base64")
		}
		s = body
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return data, nil
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"|?*`, r) {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "download"
	}
	return name
}

// uniquePath returns dir/name, or dir/"base (n).ext" when that already exists.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
	}
}
