package bridge

import (
	"fmt"
	"strings"

	"kanmonconnect/internal/protocol"
)

// ChannelName is the page-visible function the bootstrap forwards messages to.
const ChannelName = "kanmonBridgePost"

// HostObject is the global the page looks for to detect an embedding host.
const HostObject = "ReactNative"

const bootstrapTemplate = `(function () {
  if (window.__connectBridgeInstalled) { return; }
  var channel = window['{{channel}}'];
  if (typeof channel !== 'function') { return; }
  Object.defineProperty(window, '__connectBridgeInstalled', { value: true });
  var forward = function (data) {
    channel(typeof data === 'string' ? data : JSON.stringify(data));
  };
  window.postMessage = function (data) { forward(data); };
  var host = window['{{host}}'] || {};
  host.postMessage = forward;
  window['{{host}}'] = host;
})();`

// BootstrapScript returns the script that redirects window.postMessage into
// the named inbound channel. It is idempotent per document.
func BootstrapScript(channel string) string {
	r := strings.NewReplacer("{{channel}}", channel, "{{host}}", HostObject)
	return r.Replace(bootstrapTemplate)
}

const sendTemplate = `(function () {
  try {
    var event = new MessageEvent('message', { data: JSON.parse('%s') });
    window.dispatchEvent(event);
  } catch (e) {
    console.error('Error dispatching event:', e);
  }
})();`

// SendScript wraps an encoded message in a guarded block that re-dispatches
// it as a same-page message event.
func SendScript(raw string) string {
	return fmt.Sprintf(sendTemplate, protocol.EscapeForScriptInjection(raw))
}
