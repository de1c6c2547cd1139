package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモード（定期リフレッシュと記事クリーンアップのみ）で起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandImportOPML はOPMLファイルからフィードを一括登録することを示す。
	CommandImportOPML Command = "import-opml"
	// CommandExportOPML は登録済みフィードをOPMLファイルに書き出すことを示す。
	CommandExportOPML Command = "export-opml"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "import-opml":
		return CommandImportOPML
	case "export-opml":
		return CommandExportOPML
	default:
		return CommandServe
	}
}

// fileArg はOPMLサブコマンドのファイルパス引数を返す。
func fileArg(args []string) (string, bool) {
	if len(args) < 2 || args[1] == "" {
		return "", false
	}
	return args[1], true
}
