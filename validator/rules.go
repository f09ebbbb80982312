package validator

import "regexp"

// deniedModules are rejected even when an operator adds them to the
// allow-list.
var deniedModules = map[string]string{
	// process control
	"os":              "process and filesystem control",
	"sys":             "interpreter internals",
	"subprocess":      "process control",
	"multiprocessing": "process control",
	"threading":       "thread control",
	"_thread":         "thread control",
	"signal":          "process control",
	"pty":             "process control",
	"posix":           "process and filesystem control",
	"nt":              "process and filesystem control",
	"resource":        "process control",
	"fcntl":           "file descriptor control",
	"atexit":          "interpreter internals",
	"concurrent":      "process control",
	"asyncio":         "process and network control",
	// network
	"socket":       "network access",
	"ssl":          "network access",
	"select":       "network access",
	"selectors":    "network access",
	"socketserver": "network access",
	"http":         "network access",
	"urllib":       "network access",
	"ftplib":       "network access",
	"smtplib":      "network access",
	"poplib":       "network access",
	"imaplib":      "network access",
	"telnetlib":    "network access",
	"xmlrpc":       "network access",
	"webbrowser":   "network access",
	"requests":     "network access",
	// filesystem
	"io":        "filesystem access",
	"shutil":    "filesystem access",
	"pathlib":   "filesystem access",
	"glob":      "filesystem access",
	"tempfile":  "filesystem access",
	"fileinput": "filesystem access",
	"zipfile":   "filesystem access",
	"tarfile":   "filesystem access",
	"sqlite3":   "filesystem access",
	"mmap":      "memory mapping",
	// dynamic import and code loading
	"importlib": "dynamic import",
	"imp":       "dynamic import",
	"pkgutil":   "dynamic import",
	"runpy":     "dynamic import",
	"zipimport": "dynamic import",
	"code":      "dynamic evaluation",
	"codeop":    "dynamic evaluation",
	"ctypes":    "native code",
	"cffi":      "native code",
	// serialization of arbitrary objects
	"pickle":  "arbitrary object deserialization",
	"cPickle": "arbitrary object deserialization",
	"marshal": "arbitrary object deserialization",
	"shelve":  "arbitrary object deserialization",
	"dill":    "arbitrary object deserialization",
	// interpreter introspection
	"builtins":    "interpreter internals",
	"__builtin__": "interpreter internals",
	"gc":          "interpreter internals",
	"inspect":     "interpreter internals",
	"dis":         "interpreter internals",
	"traceback":   "interpreter internals",
	"types":       "interpreter internals",
	"weakref":     "interpreter internals",
	"platform":    "host introspection",
	"sysconfig":   "host introspection",
	"pdb":         "interpreter internals",
}

// blockedBuiltins are builtins that evaluate code, open files or reach
// into namespaces and attributes dynamically.
var blockedBuiltins = map[string]string{
	"eval":       "dynamic evaluation",
	"exec":       "dynamic evaluation",
	"compile":    "dynamic compilation",
	"__import__": "dynamic import",
	"open":       "file access",
	"getattr":    "dynamic attribute access",
	"setattr":    "dynamic attribute access",
	"delattr":    "dynamic attribute access",
	"globals":    "scope introspection",
	"locals":     "scope introspection",
	"vars":       "scope introspection",
	"dir":        "scope introspection",
	"breakpoint": "debugger access",
}

// blockedAttributes lead from ordinary objects back to interpreter
// internals: class hierarchies, closures, code objects and frames.
var blockedAttributes = map[string]bool{
	"__class__":        true,
	"__bases__":        true,
	"__base__":         true,
	"__mro__":          true,
	"__subclasses__":   true,
	"__globals__":      true,
	"__builtins__":     true,
	"__code__":         true,
	"__closure__":      true,
	"__dict__":         true,
	"__getattribute__": true,
	"__reduce__":       true,
	"__reduce_ex__":    true,
	"__func__":         true,
	"__self__":         true,
	"__loader__":       true,
	"__spec__":         true,
	"__import__":       true,
	"f_globals":        true,
	"f_locals":         true,
	"f_back":           true,
	"f_builtins":       true,
	"f_code":           true,
	"gi_frame":         true,
	"gi_code":          true,
	"cr_frame":         true,
	"tb_frame":         true,
	"co_code":          true,
}

// blockedNames may not be referenced at all, even as bare identifiers.
var blockedNames = map[string]bool{
	"__builtins__": true,
	"__loader__":   true,
	"__spec__":     true,
}

// moduleHandles are public attribute names under which allowed modules
// re-export a denied one, e.g. dataclasses.sys or typing.types. They are
// rejected on any object except self and cls. Private attribute names
// (random._os, collections._sys) are matched against deniedModules with the
// leading underscores removed.
var moduleHandles = map[string]bool{
	"os":              true,
	"sys":             true,
	"posix":           true,
	"nt":              true,
	"subprocess":      true,
	"builtins":        true,
	"importlib":       true,
	"inspect":         true,
	"gc":              true,
	"ctypes":          true,
	"socket":          true,
	"shutil":          true,
	"pathlib":         true,
	"threading":       true,
	"multiprocessing": true,
	"pickle":          true,
	"marshal":         true,
	"runpy":           true,
	"sysconfig":       true,
	"pty":             true,
	"fcntl":           true,
	"mmap":            true,
	"shelve":          true,
}

// instanceNames may carry private attributes, they name the receiver of a
// method.
var instanceNames = map[string]bool{
	"self": true,
	"cls":  true,
}

// allowedFutureModule is always importable, it only toggles syntax.
const allowedFutureModule = "__future__"

type sourcePattern struct {
	name string
	re   *regexp.Regexp
}

// sourcePatterns run over the raw text to catch names that were hidden
// from the syntax tree inside strings, e.g. "sub" + "process".
var sourcePatterns = []sourcePattern{
	{"subprocess", regexp.MustCompile(`\bsubprocess\b`)},
	{"socket", regexp.MustCompile(`\bsocket\b`)},
	{"ctypes", regexp.MustCompile(`\bctypes\b`)},
	{"pickle", regexp.MustCompile(`\bc?[pP]ickle\b`)},
	{"marshal", regexp.MustCompile(`\bmarshal\b`)},
	{"importlib", regexp.MustCompile(`\bimportlib\b`)},
	{"multiprocessing", regexp.MustCompile(`\bmultiprocessing\b`)},
	{"shutil", regexp.MustCompile(`\bshutil\b`)},
	{"os", regexp.MustCompile(`\b_?os\s*\.\s*(system|popen|exec\w*|spawn\w*|fork|kill|remove|unlink|rmdir|environ|getenv|getcwd|chdir|listdir|walk|open)\b`)},
	{"sys", regexp.MustCompile(`\b_?sys\s*\.\s*(modules|exit|settrace|setprofile|_getframe)\b`)},
	{"__import__", regexp.MustCompile(`__import__`)},
	{"__builtins__", regexp.MustCompile(`__builtins__`)},
	{"__subclasses__", regexp.MustCompile(`__subclasses__`)},
	{"__globals__", regexp.MustCompile(`__globals__`)},
	{"__code__", regexp.MustCompile(`__code__`)},
	{"__mro__", regexp.MustCompile(`__mro__`)},
	{"__bases__", regexp.MustCompile(`__bases__`)},
}
