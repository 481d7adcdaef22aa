package main

import (
	"bufio"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fiscal-intake/internal/config"
	"fiscal-intake/internal/migrations"
)

func main() {
	// Flags:
	// --auto  => modo não interativo (para Ansible)
	// --force => só faz sentido em modo manual: dropa e recria DB existente
	auto := flag.Bool("auto", false, "modo automático (não interativo) para automação; cria DB se não existir, roda migrations, NUNCA dropa DB existente")
	force := flag.Bool("force", false, "força drop e recriação do banco se ele já existir (modo manual)")
	flag.Parse()

	log.Println("[fiscal-intake-migrator] iniciando...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("erro carregando configuração: %v", err)
	}

	// Conecta no banco admin (postgres)
	adminDB, err := sql.Open("pgx", cfg.AdminDSN())
	if err != nil {
		log.Fatalf("erro conectando ao Postgres (admin): %v", err)
	}
	defer adminDB.Close()

	if err := adminDB.Ping(); err != nil {
		log.Fatalf("erro no ping ao Postgres (admin): %v", err)
	}
	log.Printf("Conectado ao Postgres admin em %s:%d\n", cfg.DBHost, cfg.DBPort)

	ok, err := migrations.Setup(adminDB, cfg.DBName, migrations.SetupOptions{
		Auto:    *auto,
		Force:   *force,
		Confirm: askYesNo,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}
	if !ok {
		log.Println("Operação cancelada pelo usuário. Nenhuma alteração foi feita.")
		return
	}

	runAppMigrationsOrDie(cfg)
}

// runAppMigrationsOrDie conecta no banco da aplicação e roda migrations.Run.
func runAppMigrationsOrDie(cfg *config.Config) {
	appDB, err := sql.Open("pgx", cfg.AppDSN())
	if err != nil {
		log.Fatalf("erro conectando ao banco da aplicação: %v", err)
	}
	defer appDB.Close()

	if err := appDB.Ping(); err != nil {
		log.Fatalf("erro no ping ao banco da aplicação: %v", err)
	}

	log.Println("Conectado ao banco da aplicação. Aplicando migrations...")

	if err := migrations.Run(appDB); err != nil {
		log.Fatalf("erro executando migrations: %v", err)
	}

	log.Println("Migrations aplicadas com sucesso. Banco pronto para uso.")
}

func askYesNo(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "s" || line == "sim" || line == "y" || line == "yes"
}
