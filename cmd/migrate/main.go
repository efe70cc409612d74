package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/jhoicas/Recepcion-api/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cargar configuración: %v", err)
	}

	m, err := migrate.New("file://db/migrations", cfg.DB.ConnectionString())
	if err != nil {
		log.Fatalf("crear instancia de migrate: %v", err)
	}
	defer m.Close()

	if len(os.Args) < 2 {
		fmt.Println("Uso: migrate [up|down|steps N|version]")
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migración up fallida: %v", err)
		}
		log.Println("migraciones aplicadas")

	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migración down fallida: %v", err)
		}
		log.Println("migraciones revertidas")

	case "steps":
		if len(os.Args) < 3 {
			log.Fatal("steps requiere un número")
		}
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("argumento de steps inválido: %v", err)
		}
		if err := m.Steps(n); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migración steps fallida: %v", err)
		}
		log.Printf("aplicados %d pasos de migración", n)

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("obtener versión: %v", err)
		}
		fmt.Printf("versión: %d, dirty: %v\n", version, dirty)

	default:
		fmt.Printf("comando desconocido: %s\n", cmd)
		fmt.Println("Uso: migrate [up|down|steps N|version]")
		os.Exit(1)
	}
}
